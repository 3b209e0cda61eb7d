package ckpt

import "errors"

// Sentinel errors for library operations.
var (
	// ErrInvalidLevel indicates a checkpoint level outside 1-4.
	ErrInvalidLevel = errors.New("invalid checkpoint level")

	// ErrUnsupportedIO indicates an unknown Basic:ckpt_io value.
	ErrUnsupportedIO = errors.New("unsupported checkpoint I/O mode")

	// ErrTopology indicates a process count or node size the library cannot lay out.
	ErrTopology = errors.New("invalid topology")

	// ErrHeadProcess indicates an application call made on a head process.
	ErrHeadProcess = errors.New("operation not available on a head process")

	// ErrNothingToRecover indicates Recover was called outside a restart.
	ErrNothingToRecover = errors.New("no checkpoint to recover")

	// ErrShortCheckpoint indicates the registered regions are larger than the stored payload.
	ErrShortCheckpoint = errors.New("checkpoint shorter than protected regions")

	// ErrCorruptCheckpoint indicates the stored payload does not match its digest.
	ErrCorruptCheckpoint = errors.New("checkpoint digest mismatch")

	// ErrConfigRewrite indicates the coordinating process failed to update the configuration.
	ErrConfigRewrite = errors.New("configuration rewrite failed")
)
