package telemetry

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, false).Debug("hidden")
	assert.Empty(t, buf.String())

	NewLogger(&buf, true).Debug("shown", "run_id", "abc")
	assert.Contains(t, buf.String(), "msg=shown")
	assert.Contains(t, buf.String(), "run_id=abc")
}

func TestNewRunIDUnique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestStageMetricsTextfile(t *testing.T) {
	ctx := context.Background()
	m, err := SetupMetrics("run-1")
	require.NoError(t, err)
	defer m.Shutdown(ctx)

	ctx, st := StartStage(ctx, "preprocess")
	st.Count(ctx, "rows_in", 3)
	st.Count(ctx, "rows_in", 2)
	require.NoError(t, st.End(ctx, nil))

	path := filepath.Join(t.TempDir(), "metrics", "churnflow.prom")
	require.NoError(t, m.WriteTextfile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(b)
	assert.Contains(t, text, `churnflow_rows_in_total{stage="preprocess"} 5`)
	assert.Contains(t, text, "churnflow_stage_duration_seconds")
	assert.Contains(t, text, `outcome="success"`)
}

func TestTracingWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := SetupTracing(&buf, "run-2")
	require.NoError(t, err)

	ctx, st := StartStage(context.Background(), "explain")
	boom := errors.New("boom")
	assert.ErrorIs(t, st.End(ctx, boom), boom)
	require.NoError(t, shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, `"Name": "explain"`)
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "run-2")
}
