package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dshills/codeindex/internal/chunker"
	"github.com/dshills/codeindex/internal/config"
	"github.com/dshills/codeindex/internal/embedder"
	"github.com/dshills/codeindex/internal/indexer"
	"github.com/dshills/codeindex/internal/scanner"
	"github.com/dshills/codeindex/internal/storage"
	"github.com/dshills/codeindex/internal/vcs"
	"github.com/dshills/codeindex/pkg/types"
)

const (
	// MetadataFile is the SQLite database inside the data directory
	MetadataFile = "index.db"
	// VectorSnapshotFile is the compressed chromem snapshot inside the data directory
	VectorSnapshotFile = "vectors.gob.gz"
)

// Options overrides collaborators, mainly for tests
type Options struct {
	Logger   *slog.Logger
	Executor vcs.Executor      // nil runs git
	Provider embedder.Provider // nil builds one from the embedding config
	// InMemory keeps the metadata database and vectors out of the data directory
	InMemory bool
}

// Workspace is everything needed to index and query one project root
type Workspace struct {
	Root   string
	Config *config.Config

	Metadata *storage.SQLiteMetadataStore
	Vectors  *storage.ChromemVectorStore
	Graph    *storage.SQLiteGraphStore // nil when graph indexing is disabled
	Embedder *embedder.Client
	Lister   *scanner.WalkLister
	Manager  *indexer.IndexManager
	Branch   *vcs.BranchHandler
	Profiler *indexer.Profiler

	provider embedder.Provider
	logger   *slog.Logger
	listener vcs.ListenerID
	deferred deferredChanges
}

// Open assembles a workspace for root. A nil cfg loads .codeindex.yml from root.
func Open(ctx context.Context, root string, cfg *config.Config, opts Options) (*Workspace, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("open root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	if cfg == nil {
		if cfg, err = config.LoadForRoot(root); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ws := &Workspace{
		Root:     root,
		Config:   cfg,
		Profiler: indexer.NewProfiler(),
		logger:   logger.With(slog.String("component", "workspace")),
	}
	if err := ws.openStores(ctx, opts.InMemory); err != nil {
		ws.closeStores()
		return nil, err
	}

	provider := opts.Provider
	if provider == nil {
		provider, err = embedder.New(embedder.Config{
			Provider: cfg.Embedding.Provider,
			Model:    cfg.Embedding.Model,
			APIKey:   cfg.Embedding.APIKey,
			BaseURL:  cfg.Embedding.BaseURL,
		})
		if err != nil {
			ws.closeStores()
			return nil, fmt.Errorf("create embedding provider: %w", err)
		}
	}
	ws.provider = provider

	var cache *embedder.Cache
	if cfg.Embedding.CacheSize > 0 {
		cache = embedder.NewCache(cfg.Embedding.CacheSize)
	}
	ws.Embedder = embedder.NewClient(provider, embedder.ClientOptions{
		Model:             provider.Model(),
		Cache:             cache,
		Store:             ws.Metadata,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Burst:             cfg.Embedding.Concurrency,
		Retry:             cfg.Embedding.Retry(),
		MaxBatchSize:      cfg.Embedding.BatchSize,
		Logger:            logger,
	})

	ws.Lister = scanner.NewWalkLister(scanner.Options{
		Include:     cfg.Index.Include,
		Exclude:     cfg.Index.Exclude,
		MaxFileSize: cfg.Index.MaxFileSize,
	})

	executor := opts.Executor
	if executor == nil {
		executor = vcs.NewGitExecutor(cfg.VCS.Timeout)
	}
	ws.Branch = vcs.NewBranchHandler(root, executor, logger)

	mcfg := indexer.ManagerConfig{
		Root:               root,
		Metadata:           ws.Metadata,
		Vectors:            ws.Vectors,
		Embedder:           ws.Embedder,
		Lister:             ws.Lister,
		Chunker:            chunker.New(chunker.Options{ChunkLines: cfg.Index.ChunkLines, Overlap: cfg.Index.ChunkOverlap}),
		Profiler:           ws.Profiler,
		Logger:             logger,
		EnableGraph:        cfg.Index.EnableGraph,
		Model:              provider.Model(),
		EmbedBatchSize:     cfg.Embedding.BatchSize,
		EmbedConcurrency:   cfg.Embedding.Concurrency,
		StreamBatchSize:    cfg.Index.StreamBatchSize,
		CheckpointInterval: cfg.Index.EffectiveCheckpointInterval(),
		Branch:             ws.currentBranch,
	}
	if ws.Graph != nil {
		mcfg.Graph = ws.Graph
	}
	if ws.Manager, err = indexer.NewIndexManager(mcfg); err != nil {
		_ = provider.Close()
		ws.closeStores()
		return nil, err
	}

	// The branch stored with the index lets the first check catch a switch
	// made while nothing was running.
	if st, err := ws.Metadata.GetIndexStatus(ctx); err == nil && st.Branch != "" {
		ws.Branch.SetLastBranch(st.Branch)
	}
	ws.listener = ws.Branch.OnBranchChange(ws.onBranchChange)

	return ws, nil
}

func (ws *Workspace) openStores(ctx context.Context, inMemory bool) error {
	dbPath, snapshot := ":memory:", ""
	if !inMemory {
		dataDir := ws.Config.ResolveDataDir(ws.Root)
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
		dbPath = filepath.Join(dataDir, MetadataFile)
		snapshot = filepath.Join(dataDir, VectorSnapshotFile)
	}

	meta, err := storage.NewSQLiteMetadataStore(dbPath)
	if err != nil {
		return err
	}
	ws.Metadata = meta

	ws.Vectors = storage.NewChromemVectorStore(snapshot)
	if err := ws.Vectors.Initialize(ctx); err != nil {
		return err
	}

	if ws.Config.Index.EnableGraph {
		graph := storage.NewSQLiteGraphStore(meta.DB())
		if err := graph.Initialize(ctx); err != nil {
			return err
		}
		ws.Graph = graph
	}
	return nil
}

func (ws *Workspace) closeStores() {
	if ws.Metadata != nil {
		_ = ws.Metadata.Close()
	}
}

// currentBranch is recorded with the index status; outside a repository it
// is empty
func (ws *Workspace) currentBranch(ctx context.Context) string {
	branch, err := ws.Branch.GetCurrentBranch(ctx)
	if err != nil {
		return ""
	}
	return branch
}

// Index runs a full or streaming build
func (ws *Workspace) Index(ctx context.Context, streaming bool, onProgress indexer.ProgressFunc) error {
	// Later checks compare against the branch being indexed now.
	if branch := ws.currentBranch(ctx); branch != "" {
		ws.Branch.SetLastBranch(branch)
	}

	if streaming {
		return ws.Manager.BuildStreaming(ctx, onProgress, nil)
	}
	return ws.Manager.Build(ctx, onProgress)
}

// Update applies changed repo-relative paths and persists the vector
// snapshot. A nil slice triggers a full build. Changes turned away because
// the index is busy or the update was cancelled are kept and applied with
// the next update.
func (ws *Workspace) Update(ctx context.Context, paths []string) (types.ChangeSet, error) {
	paths = ws.deferred.merge(paths)
	cs, err := ws.Manager.ApplyChangedPaths(ctx, paths)
	if errors.Is(err, indexer.ErrBuildInProgress) || errors.Is(err, indexer.ErrCancelled) {
		ws.deferred.add(paths)
		return cs, err
	}
	if err != nil {
		return cs, err
	}
	if paths != nil {
		if err := ws.Vectors.Optimize(ctx); err != nil {
			return cs, err
		}
	}
	return cs, nil
}

// onBranchChange turns a branch switch into an incremental update, or a full
// build when the diff is unknown
func (ws *Workspace) onBranchChange(ctx context.Context, res vcs.BranchChangeResult) error {
	if !res.Changed {
		return nil
	}
	if ws.Branch.HasUncommittedChanges(ctx) {
		ws.logger.Info("work tree has uncommitted changes, the watcher will pick them up",
			slog.String("branch", res.CurrentBranch))
	}

	cs, err := ws.Update(ctx, res.ChangedFiles)
	if errors.Is(err, indexer.ErrBuildInProgress) {
		ws.logger.Warn("index busy, branch change deferred", slog.String("branch", res.CurrentBranch))
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply branch change: %w", err)
	}
	ws.logger.Info("index updated for branch",
		slog.String("branch", res.CurrentBranch),
		slog.Int("added", len(cs.Added)),
		slog.Int("modified", len(cs.Modified)),
		slog.Int("deleted", len(cs.Deleted)),
	)
	return nil
}

// PendingChanges reports whether changes are waiting for the next update
func (ws *Workspace) PendingChanges() bool {
	return !ws.deferred.empty()
}

// Close persists vectors and releases the stores and provider
func (ws *Workspace) Close() error {
	ws.Branch.OffBranchChange(ws.listener)
	if ws.Manager.Running() {
		ws.Manager.Cancel()
	}

	var errs []error
	if err := ws.Vectors.Optimize(context.Background()); err != nil {
		errs = append(errs, err)
	}
	if err := ws.provider.Close(); err != nil {
		errs = append(errs, err)
	}
	if ws.Graph != nil {
		if err := ws.Graph.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := ws.Metadata.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
