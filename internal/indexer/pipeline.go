package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/dshills/codeindex/internal/chunker"
	"github.com/dshills/codeindex/internal/extract"
	"github.com/dshills/codeindex/internal/scanner"
	"github.com/dshills/codeindex/internal/storage"
	"github.com/dshills/codeindex/pkg/types"
)

// pathItem is one listed file
type pathItem struct {
	abs string
	rel string
}

// fileWork carries one file through chunk, embed and store
type fileWork struct {
	meta    types.FileMetadata
	content []byte
	cleared bool // stale generation already removed by the caller
	result  *extract.Result
	chunks  []types.Chunk
	vectors [][]float32
}

// pass runs pipeline stages against one tracker. Builds use the manager's
// live tracker and record their work in the checkpoint; incremental updates
// use a private tracker and leave the checkpoint alone.
type pass struct {
	m       *IndexManager
	track   *tracker
	durable bool
}

func (m *IndexManager) buildPass() *pass {
	return &pass{m: m, track: m.progress, durable: true}
}

// gate is checked before every batch
func (p *pass) gate(ctx context.Context) error {
	if p.durable {
		return p.m.boundary(ctx)
	}
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

// enter records a phase transition in progress and checkpoint
func (p *pass) enter(phase types.Status) {
	if p.durable {
		p.m.checkpoints.SetPhase(phase)
	}
	p.track.enter(phase)
}

// fullPipeline scans everything, then chunks, embeds and stores it in four
// strictly ordered phases.
func (m *IndexManager) fullPipeline(ctx context.Context, resume *resumeState) error {
	p := m.buildPass()

	if err := m.boundary(ctx); err != nil {
		return err
	}
	p.enter(types.StatusScanning)
	stop := m.profiler.Start("scan")
	items, err := m.list(ctx)
	if err != nil {
		stop()
		return err
	}
	p.track.update(func(pr *types.IndexingProgress) { pr.TotalFiles = len(items) })
	existing, err := m.existingFiles(ctx)
	if err != nil {
		stop()
		return err
	}
	work := p.readFiles(items, existing, resume != nil, func(done int) {
		p.track.advance(types.StatusScanning, fraction(done, len(items)))
	})
	stop()

	if err := m.boundary(ctx); err != nil {
		return err
	}
	p.enter(types.StatusChunking)
	stop = m.profiler.Start("chunk")
	p.chunkFiles(work, func(done int) {
		p.track.advance(types.StatusChunking, fraction(done, len(work)))
	})
	stop()

	if err := m.boundary(ctx); err != nil {
		return err
	}
	p.enter(types.StatusEmbedding)
	stop = m.profiler.Start("embed")
	err = p.embedFiles(ctx, work, true)
	stop()
	if err != nil {
		return err
	}

	if err := m.boundary(ctx); err != nil {
		return err
	}
	p.enter(types.StatusStoring)
	stop = m.profiler.Start("store")
	defer stop()
	for i, w := range work {
		if i > 0 && i%m.cfg.StreamBatchSize == 0 {
			if err := m.boundary(ctx); err != nil {
				return err
			}
		}
		if err := p.storeFile(ctx, w); err != nil {
			return err
		}
		work[i] = nil
		p.track.advance(types.StatusStoring, fraction(i+1, len(work)))
	}

	seen := make(map[string]bool, len(items))
	for _, it := range items {
		seen[it.rel] = true
	}
	if err := m.prune(ctx, existing, seen); err != nil {
		return err
	}
	if err := m.cfg.Vectors.Optimize(ctx); err != nil {
		return fmt.Errorf("optimize vector store: %w", err)
	}
	return nil
}

// streamPipeline runs all four phases per batch of files so that only one
// batch of content and vectors is held in memory. The checkpoint is saved
// after each batch is stored.
func (m *IndexManager) streamPipeline(ctx context.Context, resume *resumeState, batchSize int) error {
	p := m.buildPass()

	if err := m.boundary(ctx); err != nil {
		return err
	}
	p.enter(types.StatusScanning)
	items, err := m.list(ctx)
	if err != nil {
		return err
	}
	existing, err := m.existingFiles(ctx)
	if err != nil {
		return err
	}
	p.track.update(func(pr *types.IndexingProgress) { pr.TotalFiles = len(items) })

	seen := make(map[string]bool, len(items))
	for _, it := range items {
		seen[it.rel] = true
	}

	// Files up to the checkpoint's last path were stored before the
	// interruption. They are still hashed: one edited since then is redone.
	if resume != nil && resume.lastPath != "" {
		stored := sort.Search(len(items), func(i int) bool { return items[i].rel > resume.lastPath })
		m.logger.Info("verifying files stored before interruption",
			slog.Int("files", stored),
			slog.String("last_path", resume.lastPath),
		)
	}

	done := 0
	for start := 0; start < len(items); start += batchSize {
		batch := items[start:min(start+batchSize, len(items))]

		if err := m.boundary(ctx); err != nil {
			return err
		}
		p.enter(types.StatusScanning)
		stop := m.profiler.Start("scan")
		work := p.readFiles(batch, existing, resume != nil, nil)
		stop()

		p.enter(types.StatusChunking)
		stop = m.profiler.Start("chunk")
		p.chunkFiles(work, nil)
		stop()

		if err := m.boundary(ctx); err != nil {
			return err
		}
		p.enter(types.StatusEmbedding)
		stop = m.profiler.Start("embed")
		err := p.embedFiles(ctx, work, false)
		stop()
		if err != nil {
			return err
		}

		p.enter(types.StatusStoring)
		stop = m.profiler.Start("store")
		for _, w := range work {
			if err := p.storeFile(ctx, w); err != nil {
				stop()
				return err
			}
		}
		stop()

		m.checkpoints.SetLastProcessedPath(batch[len(batch)-1].rel)
		if err := m.checkpoints.Save(ctx); err != nil {
			return err
		}

		done += len(batch)
		p.track.overall(10 + 90*fraction(done, len(items)))
		m.logger.Debug("batch stored",
			slog.Int("files", len(batch)),
			slog.Int("done", done),
			slog.Int("total", len(items)),
		)
	}

	if err := m.prune(ctx, existing, seen); err != nil {
		return err
	}
	if err := m.cfg.Vectors.Optimize(ctx); err != nil {
		return fmt.Errorf("optimize vector store: %w", err)
	}
	return nil
}

// list returns the indexable files under the root, sorted by relative path
func (m *IndexManager) list(ctx context.Context) ([]pathItem, error) {
	files, err := m.cfg.Lister.ListFiles(ctx, m.root)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("list files: %w", err)
	}

	items := make([]pathItem, 0, len(files))
	for _, abs := range files {
		rel, err := scanner.RelPath(m.root, abs)
		if err != nil {
			m.logger.Warn("ignoring listed file", slog.String("path", abs), slog.String("error", err.Error()))
			continue
		}
		items = append(items, pathItem{abs: abs, rel: rel})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].rel < items[j].rel })
	return items, nil
}

// existingFiles indexes the stored file metadata by path
func (m *IndexManager) existingFiles(ctx context.Context) (map[string]types.FileMetadata, error) {
	files, err := m.cfg.Metadata.GetAllFileMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("load file metadata: %w", err)
	}
	out := make(map[string]types.FileMetadata, len(files))
	for _, f := range files {
		out[f.Path] = f
	}
	return out, nil
}

// readFiles loads file contents. Unreadable files are skipped. When
// skipUnchanged is set, files whose stored hash matches are skipped too.
func (p *pass) readFiles(items []pathItem, existing map[string]types.FileMetadata, skipUnchanged bool, onFile func(done int)) []*fileWork {
	work := make([]*fileWork, 0, len(items))
	for i, it := range items {
		meta, content, err := scanner.ReadFile(p.m.root, it.abs)
		prev, existed := existing[it.rel]

		skipped := false
		switch {
		case err != nil:
			p.m.logger.Warn("skipping unreadable file", slog.String("path", it.rel), slog.String("error", err.Error()))
			skipped = true
		case skipUnchanged && existed && prev.ContentHash == meta.ContentHash:
			skipped = true
		default:
			work = append(work, &fileWork{meta: meta, content: content})
		}

		p.track.mutate(func(pr *types.IndexingProgress) {
			pr.ScannedFiles++
			if skipped {
				pr.SkippedFiles++
			}
		})
		if onFile != nil {
			onFile(i + 1)
		}
	}
	p.m.profiler.Add("files_read", len(work))
	p.m.profiler.Add("files_skipped", len(items)-len(work))
	return work
}

// chunkFiles extracts symbols and cuts chunks. A file that fails either step
// is stored without chunks so its metadata still records the current hash.
func (p *pass) chunkFiles(work []*fileWork, onFile func(done int)) {
	m := p.m
	for i, w := range work {
		path, lang := w.meta.Path, w.meta.Language

		if m.cfg.EnableGraph || lang == "go" {
			res, err := m.cfg.Extractor.Extract(path, w.content, lang)
			if err != nil {
				m.logger.Warn("extraction failed", slog.String("path", path), slog.String("error", err.Error()))
			} else {
				if res.HasErrors() {
					m.logger.Debug("extraction reported syntax errors", slog.String("path", path), slog.Int("errors", len(res.Errors)))
				}
				w.result = res
			}
		}

		chunks, err := m.cfg.Chunker.ChunkFile(path, w.content, lang, w.result)
		if err != nil {
			m.logger.Warn("chunking failed", slog.String("path", path), slog.String("error", err.Error()))
			chunks = nil
		}
		if w.result != nil {
			chunker.LinkEntities(w.result.Entities, chunks)
		}
		w.chunks = chunks
		w.content = nil

		p.track.mutate(func(pr *types.IndexingProgress) {
			pr.ChunkedFiles++
			pr.TotalChunks += len(chunks)
		})
		m.profiler.Add("chunks", len(chunks))
		if onFile != nil {
			onFile(i + 1)
		}
	}
	p.track.flush()
}

// embedFiles embeds every chunk of work and hands the vectors back per file.
// Embedded chunk IDs become pending in the checkpoint until stored.
func (p *pass) embedFiles(ctx context.Context, work []*fileWork, report bool) error {
	var all []types.Chunk
	for _, w := range work {
		all = append(all, w.chunks...)
	}

	total := len(all)
	var finished atomic.Int64

	gate := func(ctx context.Context) error {
		if report {
			p.track.advance(types.StatusEmbedding, fraction(int(finished.Load()), total))
		}
		return p.gate(ctx)
	}
	onBatch := func(res batchResult) {
		if p.durable {
			p.m.checkpoints.AddPendingChunkIDs(res.Embedded)
		}
		p.track.mutate(func(pr *types.IndexingProgress) {
			pr.EmbeddedChunks += len(res.Embedded)
			pr.FailedChunks += res.Failed
		})
		finished.Add(int64(len(res.Embedded) + res.Failed))
	}

	vectors, err := p.m.embed.run(ctx, all, gate, onBatch)
	if err != nil {
		return err
	}
	if report {
		p.track.advance(types.StatusEmbedding, fraction(int(finished.Load()), total))
	} else {
		p.track.flush()
	}

	offset := 0
	for _, w := range work {
		w.vectors = vectors[offset : offset+len(w.chunks)]
		offset += len(w.chunks)
	}
	return nil
}

// storeFile replaces the stored generation of one file. File metadata is
// written last, so its presence means the file is fully stored. The path is
// cleared even without metadata: an interrupted store can leave chunks,
// vectors and graph rows behind with no metadata row.
func (p *pass) storeFile(ctx context.Context, w *fileWork) error {
	m := p.m
	path := w.meta.Path

	if !w.cleared {
		if err := m.deletePath(ctx, path); err != nil {
			return err
		}
	}

	if len(w.chunks) > 0 {
		if err := m.cfg.Metadata.InsertChunks(ctx, w.chunks); err != nil {
			return fmt.Errorf("store chunks of %s: %w", path, err)
		}
	}

	docs := make([]storage.VectorDocument, 0, len(w.chunks))
	for i := range w.chunks {
		if i < len(w.vectors) && w.vectors[i] != nil {
			docs = append(docs, storage.VectorDocument{Chunk: w.chunks[i], Embedding: w.vectors[i]})
		}
	}
	if len(docs) > 0 {
		if err := m.cfg.Vectors.InsertBatch(ctx, docs); err != nil {
			return fmt.Errorf("store vectors of %s: %w", path, err)
		}
	}

	if m.cfg.EnableGraph && w.result != nil {
		if err := m.cfg.Graph.InsertEntities(ctx, w.result.Entities); err != nil {
			return fmt.Errorf("store entities of %s: %w", path, err)
		}
		if len(w.result.Relations) > 0 {
			if err := m.cfg.Graph.InsertRelations(ctx, w.result.Relations); err != nil {
				return fmt.Errorf("store relations of %s: %w", path, err)
			}
		}
	}

	if err := m.cfg.Metadata.InsertFileMeta(ctx, []types.FileMetadata{w.meta}); err != nil {
		return fmt.Errorf("store metadata of %s: %w", path, err)
	}

	if p.durable {
		m.checkpoints.RemovePendingChunkIDs(types.ChunkIDs(w.chunks))
	}
	p.track.mutate(func(pr *types.IndexingProgress) { pr.StoredChunks += len(w.chunks) })
	m.profiler.Add("files_stored", 1)
	return nil
}

// deletePath removes every trace of path from all stores
func (m *IndexManager) deletePath(ctx context.Context, path string) error {
	if err := m.cfg.Metadata.DeleteFileMeta(ctx, []string{path}); err != nil {
		return fmt.Errorf("delete metadata of %s: %w", path, err)
	}
	if err := m.cfg.Metadata.DeleteChunksByFilePath(ctx, []string{path}); err != nil {
		return fmt.Errorf("delete chunks of %s: %w", path, err)
	}
	if err := m.cfg.Vectors.DeleteByFilePath(ctx, path); err != nil {
		return fmt.Errorf("delete vectors of %s: %w", path, err)
	}
	if m.cfg.Graph != nil {
		if err := m.cfg.Graph.DeleteByFilePath(ctx, path); err != nil {
			return fmt.Errorf("delete graph of %s: %w", path, err)
		}
	}
	return nil
}

// prune deletes stored files that the scan no longer lists
func (m *IndexManager) prune(ctx context.Context, existing map[string]types.FileMetadata, seen map[string]bool) error {
	var stale []string
	for path := range existing {
		if !seen[path] {
			stale = append(stale, path)
		}
	}
	sort.Strings(stale)

	for _, path := range stale {
		if err := m.deletePath(ctx, path); err != nil {
			return err
		}
	}
	if len(stale) > 0 {
		m.logger.Info("removed stale files", slog.Int("files", len(stale)))
		m.profiler.Add("files_pruned", len(stale))
	}
	return nil
}

// isNotFound reports a store miss
func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

func fraction(done, total int) float64 {
	if total <= 0 {
		return 1
	}
	return float64(done) / float64(total)
}
