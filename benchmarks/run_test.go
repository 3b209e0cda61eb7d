package benchmarks

import (
	"context"
	"testing"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/ckpt/catalog"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/group"
	"github.com/spf13/afero"
)

const benchConfig = `[Basic]
head      = 0
node_size = 2
ckpt_dir  = /Local
glbl_dir  = /Global
meta_dir  = /Meta
ckpt_io   = 1

[Restart]
failure = 0

[Advanced]
mpi_tag = 2612
`

// BenchmarkFailRun_L1 runs a 4-process fail-mode job at level 1.
func BenchmarkFailRun_L1(b *testing.B) {
	benchmarkFailRun(b, 4, ckptcheck.Params{Level: 1, FailMode: true, CkptIO: 1})
}

// BenchmarkFailRun_L4Posix runs a 4-process fail-mode job at level 4.
func BenchmarkFailRun_L4Posix(b *testing.B) {
	benchmarkFailRun(b, 4, ckptcheck.Params{Level: 4, FailMode: true, CkptIO: 1})
}

// BenchmarkFailRun_L4Shared writes every checkpoint into one shared file.
func BenchmarkFailRun_L4Shared(b *testing.B) {
	benchmarkFailRun(b, 4, ckptcheck.Params{Level: 4, FailMode: true, CkptIO: 2})
}

// BenchmarkFailRun_16 runs a 16-process fail-mode job at level 1.
func BenchmarkFailRun_16(b *testing.B) {
	benchmarkFailRun(b, 16, ckptcheck.Params{Level: 1, FailMode: true, CkptIO: 1})
}

// BenchmarkFailAndRestart runs the full two-run check.
func BenchmarkFailAndRestart(b *testing.B) {
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		fs, store := newJob(b)
		for _, fail := range []bool{true, false} {
			params := ckptcheck.Params{ConfigPath: "/job/config.fti", Level: 2, FailMode: fail, CkptIO: 1}
			outcomes, err := ckptcheck.RunLocal(ctx, group.NewLocalWorld(4), params,
				ckptcheck.WithFS(fs), ckptcheck.WithStore(store))
			if err != nil || ckptcheck.JobExitCode(outcomes) != 0 {
				b.Fatalf("run failed: %v", err)
			}
		}
	}
}

func benchmarkFailRun(b *testing.B, size int, params ckptcheck.Params) {
	b.Helper()
	ctx := context.Background()
	params.ConfigPath = "/job/config.fti"

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		fs, store := newJob(b)
		b.StartTimer()

		outcomes, err := ckptcheck.RunLocal(ctx, group.NewLocalWorld(size), params,
			ckptcheck.WithFS(fs), ckptcheck.WithStore(store))
		if err != nil || ckptcheck.JobExitCode(outcomes) != 0 {
			b.Fatalf("run failed: %v", err)
		}
	}
}

func newJob(b *testing.B) (afero.Fs, catalog.Store) {
	b.Helper()
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/job", 0o755); err != nil {
		b.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/job/config.fti", []byte(benchConfig), 0o644); err != nil {
		b.Fatal(err)
	}
	return fs, catalog.NewMemoryStore()
}
