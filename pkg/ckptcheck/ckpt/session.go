// Package ckpt is a file-backed multi-level checkpoint library.
//
// A Session is created collectively by every process of a job with Init.
// Application processes register memory regions with Protect, save them
// with Checkpoint and restore them with Recover. When the configuration
// enables heads, the first process of each node is reserved to finish
// checkpoints in the background and never runs application code.
//
// Levels select where a checkpoint ends up:
//
//	1  node-local directory l1
//	2  node-local directory l2
//	3  node-local directory l3
//	4  global directory, one file per process or one shared file
//
// Redundancy encoding is not implemented: levels 2 and 3 differ from level 1
// only in their directory.
package ckpt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/artifact"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/ckpt/catalog"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/config"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/group"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/observability"
	"github.com/spf13/afero"
)

// Status tells an application process whether it is restarting.
type Status int

const (
	// StatusNew means there is nothing to recover.
	StatusNew Status = iota

	// StatusPending means a checkpoint of a failed execution is available.
	StatusPending
)

func (s Status) String() string {
	if s == StatusPending {
		return "pending"
	}
	return "new"
}

// Checkpoint I/O modes for level 4 (Basic:ckpt_io).
const (
	IOPosix = 1
	IOMPI   = 2
)

// Configuration defaults.
const (
	DefaultCkptDir   = "./Local"
	DefaultGlobalDir = "./Global"
	DefaultMetaDir   = "./Meta"
	DefaultTag       = 2612
)

// Option configures Init.
type Option func(*options)

type options struct {
	store  catalog.Store
	logger *slog.Logger
}

// WithStore sets the catalog shared by every process of the job. Without
// it, Init opens a SQLite catalog in the metadata directory and the
// session closes it in Close.
func WithStore(store catalog.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithLogger sets the logger. The session adds its rank to it.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Session is one process's handle on the library.
type Session struct {
	fs     afero.Fs
	path   string
	cfg    config.Config
	world  group.Comm
	app    group.Comm
	store  catalog.Store
	owned  bool
	logger *slog.Logger

	layout   artifact.Layout
	nodeSize int
	heads    int
	appSize  int
	isHead   bool
	ckptIO   int
	tag      int
	status   Status

	regions    map[int]Region
	pendingAck bool
}

// initGate is what the coordinating process tells the others at Init.
type initGate struct {
	Restart bool   `json:"restart"`
	Err     string `json:"err,omitempty"`
}

// Init starts the library on every process of world. World rank 0 starts a
// new execution when the configuration records no failure: it assigns a
// fresh Restart:exec_id and sets Restart:failure to 1. Every process then
// reads the resolved configuration, which Config returns from then on.
func Init(ctx context.Context, fs afero.Fs, path string, world group.Comm, opts ...Option) (*Session, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	gate, err := coordinateStart(ctx, fs, path, world)
	if err != nil {
		return nil, err
	}

	cfg, err := config.FromFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("load resolved config: %w", err)
	}

	s := &Session{
		fs:      fs,
		path:    path,
		cfg:     cfg,
		world:   world,
		store:   o.store,
		regions: make(map[int]Region),
	}
	if err := s.configure(); err != nil {
		return nil, err
	}
	s.logger = observability.EnrichLogger(o.logger, world.Rank(), world.PhysicalID())

	color := 0
	if s.isHead {
		color = -1
	}
	s.app, err = world.Split(ctx, color, world.Rank())
	if err != nil {
		return nil, fmt.Errorf("split application processes: %w", err)
	}

	if s.store == nil {
		if err := s.fs.MkdirAll(s.layout.MetaDir, 0o755); err != nil {
			return nil, fmt.Errorf("create metadata directory: %w", err)
		}
		s.store, err = catalog.NewSQLiteStore(filepath.Join(s.layout.MetaDir, "catalog.db"))
		if err != nil {
			return nil, err
		}
		s.owned = true
	}

	if gate.Restart && !s.isHead {
		_, err := s.store.Load(s.layout.ExecID, s.app.Rank())
		switch {
		case err == nil:
			s.status = StatusPending
		case !errors.Is(err, catalog.ErrNotFound):
			return nil, fmt.Errorf("look up checkpoint record: %w", err)
		}
	}

	if s.logger != nil {
		s.logger.Debug("checkpoint library initialized",
			slog.String("exec_id", s.layout.ExecID),
			slog.Bool("head", s.isHead),
			slog.String("status", s.status.String()),
		)
	}
	return s, nil
}

// coordinateStart lets world rank 0 decide between a new execution and a
// restart, and tells every process the outcome.
func coordinateStart(ctx context.Context, fs afero.Fs, path string, world group.Comm) (initGate, error) {
	var gate initGate
	if world.Rank() == 0 {
		restart, err := startExecution(fs, path)
		gate.Restart = restart
		if err != nil {
			gate.Err = err.Error()
		}
	}

	payload, err := json.Marshal(gate)
	if err != nil {
		return gate, err
	}
	vals, err := world.Allgather(ctx, payload)
	if err != nil {
		return gate, fmt.Errorf("init barrier: %w", err)
	}
	if err := json.Unmarshal(vals[0], &gate); err != nil {
		return gate, fmt.Errorf("decode init gate: %w", err)
	}
	if gate.Err != "" {
		return gate, fmt.Errorf("%w: %s", ErrConfigRewrite, gate.Err)
	}
	return gate, nil
}

func startExecution(fs afero.Fs, path string) (restart bool, err error) {
	cfg, err := config.FromFile(fs, path)
	if err != nil {
		return false, err
	}
	if cfg.Int(config.KeyFailure, 0) == 1 {
		return true, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return false, fmt.Errorf("generate execution id: %w", err)
	}
	return false, config.Rewrite(fs, path, map[string]string{
		config.KeyExecID:  id.String(),
		config.KeyFailure: "1",
	})
}

func (s *Session) configure() error {
	size := s.world.Size()
	s.nodeSize = s.cfg.Int(config.KeyNodeSize, size)
	if s.nodeSize <= 0 || size%s.nodeSize != 0 {
		return fmt.Errorf("%w: %d processes with node size %d", ErrTopology, size, s.nodeSize)
	}
	s.heads = s.cfg.Int(config.KeyHead, 0)
	if s.heads > 0 && s.nodeSize < 2 {
		return fmt.Errorf("%w: heads need at least 2 processes per node", ErrTopology)
	}
	s.isHead = s.heads > 0 && s.world.Rank()%s.nodeSize == 0
	s.appSize = size
	if s.heads > 0 {
		s.appSize -= size / s.nodeSize
	}

	s.ckptIO = s.cfg.Int(config.KeyCkptIO, IOPosix)
	if s.ckptIO != IOPosix && s.ckptIO != IOMPI {
		return fmt.Errorf("%w: %d", ErrUnsupportedIO, s.ckptIO)
	}
	s.tag = s.cfg.Int(config.KeyMPITag, DefaultTag)

	execID := s.cfg.String(config.KeyExecID, "")
	if execID == "" {
		return fmt.Errorf("%w: %s missing", ErrConfigRewrite, config.KeyExecID)
	}
	s.layout = artifact.Layout{
		CkptDir:    s.cfg.String(config.KeyCkptDir, DefaultCkptDir),
		GlobalDir:  s.cfg.String(config.KeyGlobalDir, DefaultGlobalDir),
		MetaDir:    s.cfg.String(config.KeyMetaDir, DefaultMetaDir),
		ExecID:     execID,
		NodeSize:   s.nodeSize,
		GlobalSize: size,
	}
	return nil
}

// Config returns the configuration resolved at Init.
func (s *Session) Config() config.Config { return s.cfg }

// IsHead reports whether this process serves its node instead of running
// application code.
func (s *Session) IsHead() bool { return s.isHead }

// HasHeads reports whether the job reserves head processes.
func (s *Session) HasHeads() bool { return s.heads > 0 }

// Comm returns the application communicator, nil on a head.
func (s *Session) Comm() group.Comm { return s.app }

// World returns the communicator of every process, heads included.
func (s *Session) World() group.Comm { return s.world }

// Layout returns the artifact layout of this execution. Level is unset.
func (s *Session) Layout() artifact.Layout { return s.layout }

// ExecID returns the execution id.
func (s *Session) ExecID() string { return s.layout.ExecID }

// Tag returns the message tag used between processes and their head.
func (s *Session) Tag() int { return s.tag }

// NodeSize returns the number of processes per node.
func (s *Session) NodeSize() int { return s.nodeSize }

// HeadOf returns the world rank of the head serving worldRank.
func (s *Session) HeadOf(worldRank int) int {
	return worldRank - worldRank%s.nodeSize
}

// Inline reports whether a checkpoint at level completes before Checkpoint
// returns. Level 1 always does; higher levels are handed to the head when
// the job has heads and Basic:inline_l<level> is 0.
func (s *Session) Inline(level int) bool {
	if level == 1 || s.heads == 0 {
		return true
	}
	return s.cfg.Int(config.InlineKey(level), 1) != 0
}

// Status reports whether this process restarts from a checkpoint.
func (s *Session) Status() Status { return s.status }

// Protect registers region under id, replacing an earlier registration.
func (s *Session) Protect(id int, r Region) error {
	if s.isHead {
		return ErrHeadProcess
	}
	if id < 0 {
		return fmt.Errorf("protect: negative region id %d", id)
	}
	s.regions[id] = r
	return nil
}

// Close releases the catalog if the session opened it.
func (s *Session) Close() error {
	if s.owned {
		return s.store.Close()
	}
	return nil
}

func (s *Session) node() int {
	return s.world.Rank() / s.nodeSize
}
