// Command ckptcheck runs the checkpoint/restart check as an in-process job.
//
// Usage:
//
//	ckptcheck [flags] CONFIG LEVEL FAIL [CKPT_IO]
//
// Run it twice with the same CONFIG and LEVEL: first with FAIL=1, which
// leaves a checkpoint behind, then with FAIL=0, which recovers it and
// completes the workload.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/ckpt"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/ckpt/catalog"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/config"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/group"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type cliOptions struct {
	np        int
	pidBase   int
	catalog   string
	logLevel  string
	logFormat string
	metrics   bool
	tracing   bool
}

func defaultOptions() cliOptions {
	return cliOptions{
		np:        4,
		logLevel:  "info",
		logFormat: "text",
	}
}

func registerFlags(f *pflag.FlagSet, o *cliOptions) {
	f.IntVar(&o.np, "np", o.np, "number of processes in the job")
	f.IntVar(&o.pidBase, "pid-base", o.pidBase, "physical id of world rank 0; rank r gets pid-base+r")
	f.StringVar(&o.catalog, "catalog", o.catalog, "checkpoint catalog database (default <meta_dir>/catalog.db)")
	f.StringVar(&o.logLevel, "log-level", o.logLevel, "log level: debug, info, warn or error")
	f.StringVar(&o.logFormat, "log-format", o.logFormat, "log format: text or json")
	f.BoolVar(&o.metrics, "metrics", o.metrics, "record OpenTelemetry metrics")
	f.BoolVar(&o.tracing, "tracing", o.tracing, "record OpenTelemetry spans")
}

// newRootCmd builds the command. The job's exit code is stored in code.
func newRootCmd(stderr io.Writer, code *int) *cobra.Command {
	opts := defaultOptions()
	cmd := &cobra.Command{
		Use:   "ckptcheck [flags] CONFIG LEVEL FAIL [CKPT_IO]",
		Short: "verify a multi-level checkpoint/restart library",
		Long: `
Runs a deterministic workload on every process of a job, checkpointing it
at LEVEL (1-4) every 10 iterations. With FAIL=1 the job stops at iteration
63 and leaves its checkpoint behind; with FAIL=0 a pending checkpoint is
recovered and validated. Both runs finish by checking the size of every
checkpoint file. CKPT_IO (default 1) is written to Basic:ckpt_io.
`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			exit, err := run(cmd.Context(), stderr, opts, args)
			*code = exit
			return err
		},
	}
	registerFlags(cmd.Flags(), &opts)
	return cmd
}

func run(ctx context.Context, stderr io.Writer, opts cliOptions, args []string) (int, error) {
	params, err := ckptcheck.ParseArgs(args)
	if err != nil {
		return 1, err
	}
	if opts.np < 1 {
		return 1, fmt.Errorf("--np must be positive, got %d", opts.np)
	}

	logger, err := newLogger(stderr, opts.logLevel, opts.logFormat)
	if err != nil {
		return 1, err
	}

	fs := afero.NewOsFs()
	store, err := openCatalog(fs, params.ConfigPath, opts.catalog)
	if err != nil {
		return 1, err
	}
	defer store.Close()

	world := group.NewLocalWorld(opts.np, group.WithPhysicalIDs(func(rank int) int {
		return opts.pidBase + rank
	}))
	outcomes, err := ckptcheck.RunLocal(ctx, world, params,
		ckptcheck.WithFS(fs),
		ckptcheck.WithStore(store),
		ckptcheck.WithLogger(logger),
		ckptcheck.WithMetrics(opts.metrics),
		ckptcheck.WithTracing(opts.tracing),
	)
	if err != nil {
		return 1, err
	}
	return ckptcheck.JobExitCode(outcomes), nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("--log-format must be text or json, got %q", format)
	}
}

// openCatalog opens the catalog shared by every process of the job. A
// missing configuration file is left for the run to report.
func openCatalog(fs afero.Fs, configPath, path string) (catalog.Store, error) {
	if path == "" {
		metaDir := ckpt.DefaultMetaDir
		if cfg, err := config.FromFile(fs, configPath); err == nil {
			metaDir = cfg.String(config.KeyMetaDir, metaDir)
		}
		if err := fs.MkdirAll(metaDir, 0o755); err != nil {
			return nil, fmt.Errorf("create metadata directory: %w", err)
		}
		path = filepath.Join(metaDir, "catalog.db")
	}
	store, err := catalog.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return store, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := 0
	err := newRootCmd(os.Stderr, &code).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ckptcheck:", err)
		var uerr *ckptcheck.UsageError
		if errors.As(err, &uerr) {
			fmt.Fprintln(os.Stderr, "usage: ckptcheck [flags] CONFIG LEVEL FAIL [CKPT_IO]")
		}
		os.Exit(1)
	}
	os.Exit(code)
}
