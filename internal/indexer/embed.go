package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/codeindex/internal/embedder"
	"github.com/dshills/codeindex/pkg/types"
)

const (
	// DefaultEmbedBatchSize is the number of chunks sent per embedding call
	DefaultEmbedBatchSize = 32

	// DefaultEmbedConcurrency bounds concurrent embedding calls
	DefaultEmbedConcurrency = 4
)

// batchResult reports one finished embedding call
type batchResult struct {
	Embedded []string // IDs of chunks that received a vector
	Failed   int
}

// embedStage embeds chunks in fixed-size batches with bounded parallelism.
// A failed batch leaves its vectors nil; it never fails the stage.
type embedStage struct {
	client      embedder.EmbeddingClient
	batchSize   int
	concurrency int
	logger      *slog.Logger
	profiler    *Profiler
}

// run returns one vector per chunk, nil where embedding failed. gate is
// called before each batch is dispatched; its error stops scheduling and is
// returned once in-flight calls finish. onBatch may be called concurrently.
func (s *embedStage) run(ctx context.Context, chunks []types.Chunk, gate func(context.Context) error, onBatch func(batchResult)) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	if len(chunks) == 0 {
		return vectors, nil
	}

	// In-flight calls finish even if the run is cancelled.
	callCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	var stopErr error
	for start := 0; start < len(chunks); start += s.batchSize {
		if err := gate(ctx); err != nil {
			stopErr = err
			break
		}

		end := min(start+s.batchSize, len(chunks))
		batch := chunks[start:end]
		offset := start

		g.Go(func() error {
			res := s.embedBatch(callCtx, batch, vectors[offset:offset+len(batch)])
			if onBatch != nil {
				onBatch(res)
			}
			return nil
		})
	}

	_ = g.Wait()
	return vectors, stopErr
}

func (s *embedStage) embedBatch(ctx context.Context, batch []types.Chunk, out [][]float32) batchResult {
	defer s.profiler.Start("embed_batch")()

	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].Content
	}

	vecs, err := s.client.GenerateEmbedding(ctx, texts)
	if err == nil && len(vecs) != len(texts) {
		err = fmt.Errorf("%w: got %d vectors for %d texts", embedder.ErrProviderFailed, len(vecs), len(texts))
	}
	if err != nil {
		s.logger.Warn("embedding batch failed, chunks stored without vectors",
			slog.String("first_path", batch[0].FilePath),
			slog.Int("chunks", len(batch)),
			slog.String("error", err.Error()),
		)
		s.profiler.Add("embed_failed", len(batch))
		return batchResult{Failed: len(batch)}
	}

	var res batchResult
	for i, v := range vecs {
		if len(v) == 0 {
			res.Failed++
			continue
		}
		out[i] = v
		res.Embedded = append(res.Embedded, batch[i].ID)
	}
	s.profiler.Add("embedded", len(res.Embedded))
	s.profiler.Add("embed_failed", res.Failed)
	return res
}
