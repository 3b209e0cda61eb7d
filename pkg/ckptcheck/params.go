package ckptcheck

import (
	"errors"
	"strconv"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/artifact"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/ckpt"
)

// Params are the parameters of one run. They do not change during the run.
type Params struct {
	// ConfigPath is the checkpoint library's configuration file.
	ConfigPath string

	// Level is the checkpoint level, 1 to 4.
	Level int

	// FailMode stops the workload early and leaves its artifacts for a
	// restart. Without it a pending restart is recovered and the run
	// completes.
	FailMode bool

	// CkptIO is written to Basic:ckpt_io before the library starts.
	CkptIO int

	// CkptIODefaulted is true when CkptIO was not given.
	CkptIODefaulted bool
}

// ParseArgs parses the positional parameters CONFIG LEVEL FAIL [CKPT_IO].
// Every missing or invalid parameter is reported; the returned error joins
// one *UsageError per problem.
func ParseArgs(args []string) (Params, error) {
	var (
		p    Params
		errs []error
	)

	if len(args) < 1 || args[0] == "" {
		errs = append(errs, &UsageError{Position: 1, Name: "config file", Msg: "missing"})
	} else {
		p.ConfigPath = args[0]
	}

	if len(args) < 2 {
		errs = append(errs, &UsageError{Position: 2, Name: "checkpoint level", Msg: "missing"})
	} else if level, err := strconv.Atoi(args[1]); err != nil || level < 1 || level > artifact.GlobalLevel {
		errs = append(errs, &UsageError{Position: 2, Name: "checkpoint level", Msg: "must be 1, 2, 3 or 4, got " + strconv.Quote(args[1])})
	} else {
		p.Level = level
	}

	if len(args) < 3 {
		errs = append(errs, &UsageError{Position: 3, Name: "fail", Msg: "missing"})
	} else {
		switch args[2] {
		case "0":
		case "1":
			p.FailMode = true
		default:
			errs = append(errs, &UsageError{Position: 3, Name: "fail", Msg: "must be 0 or 1, got " + strconv.Quote(args[2])})
		}
	}

	if len(args) < 4 {
		p.CkptIO = ckpt.IOPosix
		p.CkptIODefaulted = true
	} else if io, err := strconv.Atoi(args[3]); err != nil {
		errs = append(errs, &UsageError{Position: 4, Name: "ckpt_io", Msg: "not an integer: " + strconv.Quote(args[3])})
	} else {
		p.CkptIO = io
	}

	if len(args) > 4 {
		errs = append(errs, &UsageError{Position: 5, Name: "extra", Msg: "unexpected parameter " + strconv.Quote(args[4])})
	}

	return p, errors.Join(errs...)
}
