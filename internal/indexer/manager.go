package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dshills/codeindex/internal/chunker"
	"github.com/dshills/codeindex/internal/embedder"
	"github.com/dshills/codeindex/internal/extract"
	"github.com/dshills/codeindex/internal/scanner"
	"github.com/dshills/codeindex/internal/storage"
	"github.com/dshills/codeindex/pkg/types"
)

// DefaultStreamBatchSize is the number of files per streaming batch
const DefaultStreamBatchSize = 50

// ManagerConfig wires an IndexManager to its collaborators
type ManagerConfig struct {
	Root     string
	Metadata storage.MetadataStore
	Vectors  storage.VectorStore
	Graph    storage.GraphStore // Required when EnableGraph is set
	Embedder embedder.EmbeddingClient

	// Optional; defaults are built when nil
	Lister    scanner.FileLister
	Chunker   *chunker.Chunker
	Extractor *extract.Extractor
	Profiler  *Profiler
	Logger    *slog.Logger

	EnableGraph        bool
	Model              string // Recorded in checkpoints and index status
	EmbedBatchSize     int
	EmbedConcurrency   int
	StreamBatchSize    int
	CheckpointInterval time.Duration

	// Branch names the checked-out branch for the index status
	Branch func(ctx context.Context) string
}

// StreamOptions tunes BuildStreaming
type StreamOptions struct {
	StreamBatchSize int
}

// IndexManager drives scanning, chunking, embedding and storing for one
// project root. Builds and incremental updates are mutually exclusive.
type IndexManager struct {
	cfg         ManagerConfig
	root        string
	logger      *slog.Logger
	lock        IndexLock
	progress    *tracker
	checkpoints *CheckpointManager
	embed       *embedStage
	profiler    *Profiler

	mu       sync.Mutex
	cancel   context.CancelFunc // set while a run is active
	resumeCh chan struct{}      // non-nil while paused
}

// NewIndexManager validates cfg and fills in defaults
func NewIndexManager(cfg ManagerConfig) (*IndexManager, error) {
	if cfg.Root == "" {
		return nil, errors.New("root is required")
	}
	if cfg.Metadata == nil || cfg.Vectors == nil {
		return nil, errors.New("metadata and vector stores are required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("embedding client is required")
	}
	if cfg.EnableGraph && cfg.Graph == nil {
		return nil, errors.New("graph store is required when graph indexing is enabled")
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Lister == nil {
		cfg.Lister = scanner.NewWalkLister(scanner.Options{})
	}
	if cfg.Chunker == nil {
		cfg.Chunker = chunker.New(chunker.Options{})
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extract.New()
	}
	if cfg.Profiler == nil {
		cfg.Profiler = NewProfiler()
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = DefaultEmbedConcurrency
	}
	if cfg.StreamBatchSize <= 0 {
		cfg.StreamBatchSize = DefaultStreamBatchSize
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = DefaultCheckpointInterval
	}

	logger := cfg.Logger.With(slog.String("component", "indexer"))
	m := &IndexManager{
		cfg:         cfg,
		root:        root,
		logger:      logger,
		progress:    newTracker(),
		checkpoints: NewCheckpointManager(cfg.Metadata, cfg.CheckpointInterval, logger),
		profiler:    cfg.Profiler,
	}
	m.embed = &embedStage{
		client:      cfg.Embedder,
		batchSize:   cfg.EmbedBatchSize,
		concurrency: cfg.EmbedConcurrency,
		logger:      logger,
		profiler:    cfg.Profiler,
	}
	return m, nil
}

// Root returns the absolute project root
func (m *IndexManager) Root() string {
	return m.root
}

// Checkpoints exposes the checkpoint manager
func (m *IndexManager) Checkpoints() *CheckpointManager {
	return m.checkpoints
}

// Running reports whether a build or update holds the index lock
func (m *IndexManager) Running() bool {
	return m.lock.Held()
}

// GetProgress returns a copy of the current progress
func (m *IndexManager) GetProgress() types.IndexingProgress {
	return m.progress.snapshot()
}

// Build runs a full build: every file is scanned, then all are chunked, then
// embedded, then stored.
func (m *IndexManager) Build(ctx context.Context, onProgress ProgressFunc) error {
	return m.run(ctx, onProgress, false, 0)
}

// BuildStreaming runs the same phases per batch of files and saves a
// checkpoint after each batch is stored.
func (m *IndexManager) BuildStreaming(ctx context.Context, onProgress ProgressFunc, opts *StreamOptions) error {
	size := m.cfg.StreamBatchSize
	if opts != nil && opts.StreamBatchSize > 0 {
		size = opts.StreamBatchSize
	}
	return m.run(ctx, onProgress, true, size)
}

// Pause asks the running build to stop at its next phase or batch boundary.
// Status switches to paused at once and the checkpoint is saved.
func (m *IndexManager) Pause() error {
	m.mu.Lock()
	if m.resumeCh == nil {
		m.resumeCh = make(chan struct{})
	}
	m.mu.Unlock()

	prev := m.progress.pause()
	if cp := m.checkpoints.Current(); cp == nil || !cp.Phase.InProgress() {
		m.checkpoints.SetPhase(prev)
	}

	m.logger.Info("pause requested", slog.String("phase", string(prev)))
	return m.checkpoints.Save(context.Background())
}

// Resume lets a paused build continue from where it stopped
func (m *IndexManager) Resume() {
	m.mu.Lock()
	ch := m.resumeCh
	m.resumeCh = nil
	m.mu.Unlock()

	if ch != nil {
		close(ch)
	}
	if m.progress.resume() {
		m.logger.Info("resume requested")
	}
}

// Cancel stops the running build at its next boundary and resets status to
// idle. Embedding calls already in flight are allowed to finish. The
// checkpoint is left in place; callers wanting a clean restart clear it.
func (m *IndexManager) Cancel() {
	m.mu.Lock()
	cancel := m.cancel
	ch := m.resumeCh
	m.resumeCh = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		close(ch)
	}
	m.progress.halt()
	m.logger.Info("cancel requested")
}

// boundary is checked between phases and batches. It blocks while paused
// and returns ErrCancelled once the run's context is done.
func (m *IndexManager) boundary(ctx context.Context) error {
	m.progress.flush()
	if ctx.Err() != nil {
		return ErrCancelled
	}

	m.mu.Lock()
	ch := m.resumeCh
	m.mu.Unlock()
	if ch == nil {
		return nil
	}

	if err := m.checkpoints.Save(ctx); err != nil {
		m.logger.Warn("checkpoint save on pause failed", slog.String("error", err.Error()))
	}
	m.logger.Info("indexing paused")

	select {
	case <-ch:
	case <-ctx.Done():
	}
	if ctx.Err() != nil {
		return ErrCancelled
	}
	m.logger.Info("indexing resumed")
	return nil
}

// resumeState carries what a resumed run needs from the checkpoint
type resumeState struct {
	phase    types.Status
	lastPath string
}

func (m *IndexManager) run(ctx context.Context, onProgress ProgressFunc, streaming bool, batchSize int) error {
	if err := m.lock.Acquire(); err != nil {
		return err
	}
	defer m.lock.Release()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.setCancel(cancel)
	defer m.setCancel(nil)

	m.profiler.Reset()
	m.progress.reset(onProgress, streaming)
	stop := m.profiler.Start("build")

	// begin starts autosave
	defer m.checkpoints.Stop()
	resume, err := m.begin(runCtx, streaming)
	if err != nil {
		stop()
		return m.complete(ctx, runCtx, err)
	}

	m.logger.Info("build started",
		slog.String("run_id", m.profiler.RunID()),
		slog.String("root", m.root),
		slog.Bool("streaming", streaming),
		slog.Bool("resume", resume != nil),
	)

	if streaming {
		err = m.streamPipeline(runCtx, resume, batchSize)
	} else {
		err = m.fullPipeline(runCtx, resume)
	}
	stop()
	return m.complete(ctx, runCtx, err)
}

func (m *IndexManager) setCancel(cancel context.CancelFunc) {
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
}

// begin loads the checkpoint. A resumable one is continued: vectors of chunks
// that were embedded but never stored are dropped. Otherwise a fresh
// checkpoint is started.
func (m *IndexManager) begin(ctx context.Context, streaming bool) (*resumeState, error) {
	cp, err := m.checkpoints.Start(ctx)
	if err != nil {
		return nil, err
	}

	if !cp.IsResumable() {
		m.checkpoints.Begin(m.profiler.RunID(), streaming, m.cfg.Model)
		return nil, nil
	}

	if len(cp.PendingChunkIDs) > 0 {
		if err := m.cfg.Vectors.DeleteByChunkIDs(ctx, cp.PendingChunkIDs); err != nil {
			return nil, fmt.Errorf("drop pending vectors: %w", err)
		}
		m.checkpoints.SetPendingChunkIDs(nil)
	}

	rs := &resumeState{phase: cp.Phase}
	if cp.Streaming && streaming {
		rs.lastPath = cp.LastProcessedPath
	}
	m.logger.Info("resuming from checkpoint",
		slog.String("run_id", cp.RunID),
		slog.String("phase", string(cp.Phase)),
		slog.String("last_path", rs.lastPath),
		slog.Int("pending", len(cp.PendingChunkIDs)),
	)
	return rs, nil
}

// complete settles status, checkpoint and index status for a finished run
func (m *IndexManager) complete(ctx, runCtx context.Context, err error) error {
	m.mu.Lock()
	ch := m.resumeCh
	m.resumeCh = nil
	m.mu.Unlock()
	if ch != nil {
		close(ch)
	}

	report := m.profiler.Report()
	report.Log(m.logger)

	if err == nil {
		if err = m.checkpoints.Clear(ctx); err == nil {
			err = m.writeStatus(ctx, types.StatusDone)
		}
	}

	switch {
	case err == nil:
		m.progress.finish(types.StatusDone, "")
		p := m.progress.snapshot()
		m.logger.Info("build finished",
			slog.Int("files", p.TotalFiles),
			slog.Int("skipped", p.SkippedFiles),
			slog.Int("chunks", p.TotalChunks),
			slog.Int("embedded", p.EmbeddedChunks),
			slog.Int("failed", p.FailedChunks),
			slog.Duration("elapsed", report.Elapsed),
		)
		return nil

	case errors.Is(err, ErrCancelled) || runCtx.Err() != nil:
		m.progress.finish(types.StatusIdle, "")
		m.logger.Info("build cancelled")
		return ErrCancelled

	default:
		m.progress.finish(types.StatusError, err.Error())
		m.logger.Error("build failed", slog.String("error", err.Error()))
		if serr := m.checkpoints.Save(ctx); serr != nil {
			m.logger.Warn("checkpoint save after failure failed", slog.String("error", serr.Error()))
		}
		if serr := m.writeStatus(ctx, types.StatusError); serr != nil {
			m.logger.Warn("index status update failed", slog.String("error", serr.Error()))
		}
		return err
	}
}

// writeStatus records the run summary in the metadata store
func (m *IndexManager) writeStatus(ctx context.Context, status types.Status) error {
	p := m.progress.snapshot()
	patch := storage.IndexStatusPatch{
		Status:         &status,
		EmbeddedChunks: &p.EmbeddedChunks,
		FailedChunks:   &p.FailedChunks,
		TotalChunks:    &p.TotalChunks,
		Model:          &m.cfg.Model,
	}

	if status == types.StatusDone {
		files, err := m.cfg.Metadata.GetAllFileMeta(ctx)
		if err != nil {
			return fmt.Errorf("count files: %w", err)
		}
		n := len(files)
		now := time.Now()
		patch.TotalFiles = &n
		patch.LastIndexedAt = &now
	}
	if m.cfg.Branch != nil {
		branch := m.cfg.Branch(ctx)
		patch.Branch = &branch
	}

	if err := m.cfg.Metadata.UpdateIndexStatus(ctx, patch); err != nil {
		return fmt.Errorf("update index status: %w", err)
	}
	return nil
}
