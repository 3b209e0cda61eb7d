package artifact_test

import (
	"testing"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/artifact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeModel_ProcessBytes(t *testing.T) {
	tests := []struct {
		name     string
		failMode bool
		rank     int
		want     int64
	}{
		// Stopped early: last checkpoint at iteration 60.
		{"fail rank 0", true, 0, 8 + 64*8},
		{"fail rank 1", true, 1, 8 + 188*8},
		{"fail rank 2", true, 2, 8 + 312*8},
		// Complete: last checkpoint at iteration 110.
		{"complete rank 0", false, 0, 8 + 64*8},
		{"complete rank 2", false, 2, 8 + 412*8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := artifact.SizeModel{WorldSize: 3, FailMode: tt.failMode}
			assert.Equal(t, tt.want, m.ProcessBytes(tt.rank))
		})
	}
}

func TestSizeModel_SharedBytes(t *testing.T) {
	m := artifact.SizeModel{WorldSize: 3, FailMode: true}
	want := m.ProcessBytes(0) + m.ProcessBytes(1) + m.ProcessBytes(2)
	require.Equal(t, int64(520+1512+2504), want)
	assert.Equal(t, want, m.SharedBytes())

	assert.Equal(t, int64(0), artifact.SizeModel{}.SharedBytes())
}
