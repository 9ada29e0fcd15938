package indexer

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfiler_Report(t *testing.T) {
	clock := time.Unix(0, 0)
	p := &Profiler{now: func() time.Time { return clock }}
	p.Reset()
	firstID := p.RunID()
	require.NotEmpty(t, firstID)

	stop := p.Start("embed")
	clock = clock.Add(300 * time.Millisecond)
	stop()

	stop = p.Start("scan")
	clock = clock.Add(100 * time.Millisecond)
	stop()

	stop = p.Start("embed")
	clock = clock.Add(200 * time.Millisecond)
	stop()

	p.Add("chunks", 7)
	p.Add("chunks", 3)

	r := p.Report()
	assert.Equal(t, firstID, r.RunID)
	assert.Equal(t, 600*time.Millisecond, r.Elapsed)
	require.Len(t, r.Stages, 2)
	assert.Equal(t, "embed", r.Stages[0].Name)
	assert.Equal(t, 2, r.Stages[0].Calls)
	assert.Equal(t, 500*time.Millisecond, r.Stages[0].Total)
	assert.Equal(t, 300*time.Millisecond, r.Stages[0].Max)
	assert.Equal(t, "scan", r.Stages[1].Name)
	assert.Equal(t, int64(10), r.Counters["chunks"])

	p.Reset()
	assert.NotEqual(t, firstID, p.RunID())
	assert.Empty(t, p.Report().Stages)
}

func TestProfiler_IndependentInstances(t *testing.T) {
	a, b := NewProfiler(), NewProfiler()
	a.Add("files_read", 1)
	assert.NotEqual(t, a.RunID(), b.RunID())
	assert.Empty(t, b.Report().Counters)
}

func TestProfileReport_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	p := NewProfiler()
	p.Start("store")()
	p.Add("files_stored", 2)
	p.Report().Log(logger)

	out := buf.String()
	assert.Contains(t, out, "indexing profile")
	assert.Contains(t, out, "counters.files_stored=2")
	assert.Contains(t, out, "stage=store")
}
