package ckptcheck

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/artifact"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/ckpt"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/config"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/group"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/observability"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/workload"
)

// Outcome is the result of one process's run.
type Outcome struct {
	// Rank is the world rank.
	Rank int

	// Head is true for a head process, which runs no workload.
	Head bool

	// Code is the status code; Err is nil exactly when it is WorkDone.
	Code workload.Status
	Err  error

	// State is the final workload state of an application process.
	State *workload.ProcessState

	// Report is set on the process that verified the artifacts.
	Report *artifact.Report
}

// ExitCode returns the process exit code.
func (o Outcome) ExitCode() int {
	return ExitCode(o.Err)
}

// Run executes the harness on one process of world. Every process of the
// job calls it with the same params.
//
// Run flow:
//  1. World rank 0 writes params.CkptIO to Basic:ckpt_io; the others wait
//  2. The checkpoint library starts; heads serve their node until stopped
//  3. Application processes run the workload, recovering a pending restart
//  4. Physical ids and statuses are gathered at application rank 0
//  5. Processes wait for their head's deferred checkpoints and stop it
//  6. Application rank 0 checks every artifact's size if all workloads passed
func Run(ctx context.Context, world group.Comm, params Params, opts ...Option) (out Outcome) {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	out.Rank = world.Rank()
	logger := observability.EnrichLogger(cfg.logger, world.Rank(), world.PhysicalID())
	startTime := time.Now()

	ctx, runSpan := cfg.spans.StartRunSpan(ctx, world.Rank(), params.Level, params.FailMode)
	defer func() {
		out.Code = StatusOf(out.Err)
		duration := time.Since(startTime)
		cfg.spans.EndSpanWithError(runSpan, out.Err)
		if !out.Head {
			cfg.metrics.RecordRun(ctx, params.FailMode, int(out.Code), duration)
		}
		observability.LogVerdict(logger, int(out.Code), out.Err, float64(duration.Milliseconds()))
	}()

	if world.Rank() == 0 {
		observability.LogRunStart(logger, params.Level, params.FailMode, params.CkptIO)
		if params.CkptIODefaulted && logger != nil {
			logger.Info("ckpt_io not given, using 1")
		}
	}

	if err := rewriteCkptIO(ctx, cfg, world, params); err != nil {
		out.Err = err
		return out
	}

	libOpts := []ckpt.Option{ckpt.WithLogger(cfg.logger)}
	if cfg.store != nil {
		libOpts = append(libOpts, ckpt.WithStore(cfg.store))
	}
	sess, err := ckpt.Init(ctx, cfg.fs, params.ConfigPath, world, libOpts...)
	if err != nil {
		out.Err = fmt.Errorf("start checkpoint library: %w", err)
		return out
	}
	defer func() {
		if err := sess.Close(); err != nil && out.Err == nil {
			out.Err = fmt.Errorf("close checkpoint library: %w", err)
		}
	}()

	if sess.IsHead() {
		out.Head = true
		out.Err = serveHead(ctx, sess)
		return out
	}

	app := sess.Comm()
	out.State, out.Err = workload.NewDriver(sess, params.Level, params.FailMode,
		workload.WithLogger(logger),
		workload.WithMetrics(cfg.metrics),
		workload.WithSpans(cfg.spans),
	).Run(ctx, app.Rank())

	pids, err := group.GatherInt(ctx, app, 0, int64(world.PhysicalID()))
	if err != nil {
		out.Err = firstErr(out.Err, fmt.Errorf("gather physical ids: %w", err))
		return out
	}
	statuses, err := group.GatherInt(ctx, app, 0, int64(StatusOf(out.Err)))
	if err != nil {
		out.Err = firstErr(out.Err, fmt.Errorf("gather statuses: %w", err))
		return out
	}

	if err := stopHead(ctx, sess, params.Level); err != nil {
		out.Err = firstErr(out.Err, err)
		return out
	}

	if app.Rank() == 0 {
		switch {
		case !allDone(statuses):
			if logger != nil {
				logger.Warn("artifact verification skipped", slog.Any("statuses", statuses))
			}
		default:
			out.Report, err = verify(ctx, cfg, logger, sess, params, pids)
			out.Err = firstErr(out.Err, err)
			if err == nil && !params.FailMode && logger != nil {
				logger.Info("Success.")
			}
		}
	}

	if err := app.Barrier(ctx); err != nil {
		out.Err = firstErr(out.Err, fmt.Errorf("final barrier: %w", err))
	}
	return out
}

// rewriteCkptIO has world rank 0 update Basic:ckpt_io. The gathered status
// doubles as the barrier that keeps the others from reading the file early.
func rewriteCkptIO(ctx context.Context, cfg runConfig, world group.Comm, params Params) error {
	var rewriteErr error
	failed := int64(0)
	if world.Rank() == 0 {
		rewriteErr = config.Rewrite(cfg.fs, params.ConfigPath, map[string]string{
			config.KeyCkptIO: strconv.Itoa(params.CkptIO),
		})
		if rewriteErr != nil {
			failed = 1
		}
	}

	vals, err := group.AllgatherInt(ctx, world, failed)
	if err != nil {
		return fmt.Errorf("configuration barrier: %w", err)
	}
	switch {
	case rewriteErr != nil:
		return fmt.Errorf("%w: %w", ErrConfigRewrite, rewriteErr)
	case vals[0] != 0:
		return ErrConfigRewrite
	}
	return nil
}

func serveHead(ctx context.Context, sess *ckpt.Session) error {
	if err := sess.ServeHead(ctx); err != nil {
		return err
	}
	if err := sess.World().Barrier(ctx); err != nil {
		return fmt.Errorf("head barrier: %w", err)
	}
	return nil
}

// stopHead waits for deferred checkpoints when the level is not inline and
// then releases the head of this process's node.
func stopHead(ctx context.Context, sess *ckpt.Session, level int) error {
	if !sess.HasHeads() {
		return nil
	}
	if sess.Config().Int(config.InlineKey(level), 1) == 0 {
		if err := sess.AwaitHead(ctx); err != nil {
			return fmt.Errorf("wait for head: %w", err)
		}
	}

	world := sess.World()
	if err := world.Send(ctx, sess.HeadOf(world.Rank()), sess.Tag(), ckpt.StopMessage()); err != nil {
		return fmt.Errorf("stop head: %w", err)
	}
	if err := world.Barrier(ctx); err != nil {
		return fmt.Errorf("head barrier: %w", err)
	}
	return nil
}

func verify(ctx context.Context, cfg runConfig, logger *slog.Logger, sess *ckpt.Session, params Params, pids []int64) (report *artifact.Report, err error) {
	ctx, span := cfg.spans.StartPhaseSpan(ctx, observability.PhaseVerify)
	defer func() { cfg.spans.EndSpanWithError(span, err) }()

	physical := make([]int, len(pids))
	for i, pid := range pids {
		physical[i] = int(pid)
	}
	ids, err := artifact.NewIdentifierMap(physical)
	if err != nil {
		return nil, err
	}

	layout := sess.Layout()
	layout.Level = params.Level
	model := artifact.SizeModel{WorldSize: len(physical), FailMode: params.FailMode}

	return artifact.NewVerifier(cfg.fs, layout, model, ids,
		artifact.WithLogger(logger),
		artifact.WithMetrics(cfg.metrics),
	).Verify(ctx)
}

func allDone(statuses []int64) bool {
	for _, s := range statuses {
		if workload.Status(s) != workload.WorkDone {
			return false
		}
	}
	return true
}

func firstErr(err, next error) error {
	if err != nil {
		return err
	}
	return next
}

// RunLocal runs every process of an in-process world and returns their
// outcomes indexed by world rank. A failing process does not cancel the
// others: it still takes part in every collective Run issues.
func RunLocal(ctx context.Context, world *group.LocalWorld, params Params, opts ...Option) ([]Outcome, error) {
	outcomes := make([]Outcome, world.Size())
	err := world.Run(ctx, func(ctx context.Context, c group.Comm) error {
		outcomes[c.Rank()] = Run(ctx, c, params, opts...)
		return nil
	})
	return outcomes, err
}

// JobExitCode is the exit code of a whole job: 1 when any process failed.
func JobExitCode(outcomes []Outcome) int {
	for _, o := range outcomes {
		if code := o.ExitCode(); code != 0 {
			return code
		}
	}
	return 0
}
