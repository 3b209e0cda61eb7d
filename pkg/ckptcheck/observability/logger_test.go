package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	buf   *bytes.Buffer
	level slog.Level
	attrs []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{
		buf:   h.buf,
		level: h.level,
		attrs: make([]slog.Attr, len(h.attrs)+len(attrs)),
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(string) slog.Handler {
	return h
}

func (h *testHandler) getLastRecord() map[string]any {
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) > 0 {
			var m map[string]any
			if err := json.Unmarshal(lines[i], &m); err == nil {
				return m
			}
		}
	}
	return nil
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds rank and physical_id", func(t *testing.T) {
		h := newTestHandler()
		enriched := EnrichLogger(slog.New(h), 2, 17)
		enriched.Info("test message")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, float64(2), record["rank"]) // JSON decodes ints as float64
		assert.Equal(t, float64(17), record["physical_id"])
		assert.Equal(t, "test message", record["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, 0, 0))
	})
}

func TestLogRunStart(t *testing.T) {
	h := newTestHandler()
	LogRunStart(slog.New(h), 4, true, 2)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "run starting", record["msg"])
	assert.Equal(t, float64(4), record["ckpt_level"])
	assert.Equal(t, true, record["fail_mode"])
	assert.Equal(t, float64(2), record["ckpt_io"])
}

func TestLogCheckpoint(t *testing.T) {
	t.Run("success at DEBUG", func(t *testing.T) {
		h := newTestHandler()
		LogCheckpoint(slog.New(h), 7, 2, 1248)

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "DEBUG", record["level"])
		assert.Equal(t, float64(7), record["checkpoint_id"])
		assert.Equal(t, float64(1248), record["size_bytes"])
	})

	t.Run("error at ERROR", func(t *testing.T) {
		h := newTestHandler()
		LogCheckpointError(slog.New(h), 3, 1, errors.New("disk full"))

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "ERROR", record["level"])
		assert.Equal(t, "disk full", record["error"])
	})
}

func TestLogRecovery(t *testing.T) {
	h := newTestHandler()
	LogRecovery(slog.New(h), 60, 312, 2504)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "state recovered", record["msg"])
	assert.Equal(t, float64(60), record["iteration"])
	assert.Equal(t, float64(312), record["buffer_length"])
	assert.Equal(t, float64(2504), record["recovered_bytes"])

	LogRecoveryError(slog.New(h), errors.New("bad length"))
	record = h.getLastRecord()
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "bad length", record["error"])
}

func TestLogArtifactCheck(t *testing.T) {
	tests := []struct {
		name     string
		actual   int64
		expected int64
		level    string
		msg      string
	}{
		{"match", 1048, 1048, "DEBUG", "artifact size ok"},
		{"mismatch", 1047, 1048, "ERROR", "artifact size mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler()
			LogArtifactCheck(slog.New(h), "l1/Ckpt7-Rank0.fti", tt.actual, tt.expected)

			record := h.getLastRecord()
			require.NotNil(t, record)
			assert.Equal(t, tt.level, record["level"])
			assert.Equal(t, tt.msg, record["msg"])
			assert.Equal(t, "l1/Ckpt7-Rank0.fti", record["path"])
		})
	}
}

func TestLogArtifactWarningAndSkipped(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogArtifactWarning(logger, "l2/notes.txt", errors.New("unrecognized"))
	record := h.getLastRecord()
	assert.Equal(t, "WARN", record["level"])

	LogArtifactSkipped(logger, "l2/Ckpt7-Pcof1.fti", "partner")
	record = h.getLastRecord()
	assert.Equal(t, "partner", record["kind"])
}

func TestLogVerdict(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogVerdict(logger, 0, nil, 12)
	record := h.getLastRecord()
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, float64(0), record["status"])

	LogVerdict(logger, 1, errors.New("size mismatch"), 12)
	record = h.getLastRecord()
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, float64(1), record["status"])
	assert.Equal(t, "size mismatch", record["error"])
}

func TestLogWorkStopped(t *testing.T) {
	h := newTestHandler()
	LogWorkStopped(slog.New(h), 63, 318)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "work stopped", record["msg"])
	assert.Equal(t, float64(318), record["buffer_length"])
}

func TestNilLoggerDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		LogRunStart(nil, 1, false, 1)
		LogCheckpoint(nil, 1, 1, 0)
		LogCheckpointError(nil, 1, 1, errors.New("x"))
		LogRecovery(nil, 0, 0, 0)
		LogRecoveryError(nil, errors.New("x"))
		LogArtifactCheck(nil, "", 0, 1)
		LogArtifactSkipped(nil, "", "")
		LogArtifactWarning(nil, "", errors.New("x"))
		LogVerdict(nil, 1, errors.New("x"), 0)
		LogWorkStopped(nil, 63, 318)
	})
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	assert.GreaterOrEqual(t, done(), float64(0))
}
