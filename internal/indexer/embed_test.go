package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeindex/pkg/types"
)

// scriptedEmbedder fails calls whose first text is listed in failOn
type scriptedEmbedder struct {
	failOn   map[string]bool
	short    bool // return one vector too few
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *scriptedEmbedder) GenerateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)

	if s.failOn[texts[0]] {
		return nil, errEmbedDown
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i + 1)}
	}
	if s.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func testChunks(n int) []types.Chunk {
	chunks := make([]types.Chunk, n)
	for i := range chunks {
		chunks[i] = types.Chunk{ID: fmt.Sprintf("c%02d", i), FilePath: "a.go", Content: fmt.Sprintf("chunk %d", i)}
	}
	return chunks
}

func newTestStage(client *scriptedEmbedder, batch, concurrency int) *embedStage {
	return &embedStage{
		client:      client,
		batchSize:   batch,
		concurrency: concurrency,
		logger:      slog.New(slog.DiscardHandler),
		profiler:    NewProfiler(),
	}
}

func noGate(context.Context) error { return nil }

func TestEmbedStage_FailedBatchesLeaveNilVectors(t *testing.T) {
	client := &scriptedEmbedder{failOn: map[string]bool{"chunk 4": true}}
	stage := newTestStage(client, 2, 2)

	var mu sync.Mutex
	var embedded []string
	failed := 0
	vectors, err := stage.run(context.Background(), testChunks(6), noGate, func(r batchResult) {
		mu.Lock()
		defer mu.Unlock()
		embedded = append(embedded, r.Embedded...)
		failed += r.Failed
	})
	require.NoError(t, err)
	require.Len(t, vectors, 6)

	for i, v := range vectors {
		if i == 4 || i == 5 {
			assert.Nil(t, v, "chunk %d", i)
		} else {
			assert.NotNil(t, v, "chunk %d", i)
		}
	}
	assert.ElementsMatch(t, []string{"c00", "c01", "c02", "c03"}, embedded)
	assert.Equal(t, 2, failed)
	assert.Equal(t, int64(2), stage.profiler.Report().Counters["embed_failed"])
}

func TestEmbedStage_LengthMismatchFailsBatch(t *testing.T) {
	stage := newTestStage(&scriptedEmbedder{short: true}, 3, 1)

	failed := 0
	vectors, err := stage.run(context.Background(), testChunks(3), noGate, func(r batchResult) {
		failed += r.Failed
	})
	require.NoError(t, err)
	assert.Equal(t, 3, failed)
	for _, v := range vectors {
		assert.Nil(t, v)
	}
}

func TestEmbedStage_BoundedConcurrency(t *testing.T) {
	client := &scriptedEmbedder{}
	stage := newTestStage(client, 1, 3)

	_, err := stage.run(context.Background(), testChunks(20), noGate, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, client.peak.Load(), int32(3))
	assert.Positive(t, client.peak.Load())
}

func TestEmbedStage_GateStopsScheduling(t *testing.T) {
	client := &scriptedEmbedder{}
	stage := newTestStage(client, 2, 1)

	stopErr := errors.New("stop")
	calls := 0
	gate := func(context.Context) error {
		calls++
		if calls > 2 {
			return stopErr
		}
		return nil
	}

	var batches atomic.Int32
	vectors, err := stage.run(context.Background(), testChunks(10), gate, func(batchResult) { batches.Add(1) })
	assert.ErrorIs(t, err, stopErr)
	assert.Equal(t, int32(2), batches.Load(), "dispatched batches still finish")
	assert.NotNil(t, vectors[3])
	assert.Nil(t, vectors[4])
}

func TestEmbedStage_Empty(t *testing.T) {
	stage := newTestStage(&scriptedEmbedder{}, 2, 1)
	vectors, err := stage.run(context.Background(), nil, noGate, nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}
