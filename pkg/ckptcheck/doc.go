/*
Package ckptcheck verifies a multi-level checkpoint/restart library end to end.

# Overview

Every process of a job runs a synthetic workload whose state is a buffer
that grows deterministically: after i iterations rank r holds
(r+1)*64 + i*r elements, all equal to i*r. The workload protects its
iteration counter, the buffer length and the buffer with the library and
requests a checkpoint every 10 iterations.

A check is two runs with the same parameters:

  - fail mode (FAIL=1) stops every process at iteration 63, leaving the
    checkpoint of iteration 60 on storage, and checks the artifact sizes;
  - the restart (FAIL=0) recovers iteration 60, validates the recovered
    values, runs to iteration 111, verifies the final values and checks the
    artifact sizes of the last checkpoint.

Artifact sizes are predicted from the workload model alone, so a library
that writes the wrong bytes fails the check even when recovery works.

# Usage

	params, err := ckptcheck.ParseArgs([]string{"config.fti", "2", "1"})
	if err != nil {
	    log.Fatal(err)
	}

	world := group.NewLocalWorld(4)
	outcomes, err := ckptcheck.RunLocal(ctx, world, params,
	    ckptcheck.WithLogger(logger),
	)
	if err != nil {
	    log.Fatal(err)
	}
	os.Exit(ckptcheck.JobExitCode(outcomes))

# Status Codes

Each process reports one of workload.WorkDone, workload.VerifyFailed,
workload.CheckpointFailed or workload.RecoveryFailed. StatusOf maps the
error of an Outcome to its code; the exit code is 0 only for WorkDone.

# Observability

Logging uses log/slog; metrics and tracing use OpenTelemetry and are
enabled with WithMetrics and WithTracing.
*/
package ckptcheck
