package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/codeindex/internal/scanner"
	"github.com/dshills/codeindex/internal/storage"
	"github.com/dshills/codeindex/pkg/types"
)

// IncrementalUpdate applies a change set to the existing index. Deleted paths
// are removed from every store. Modified paths are removed first and then
// stored again from disk, so a path never has two generations of chunks.
// Added paths that are already stored are treated as modified.
func (m *IndexManager) IncrementalUpdate(ctx context.Context, changes types.ChangeSet) error {
	if err := m.lock.Acquire(); err != nil {
		return err
	}
	defer m.lock.Release()

	changes = changes.Normalize()
	if changes.IsEmpty() {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.setCancel(cancel)
	defer m.setCancel(nil)

	defer m.profiler.Start("incremental")()
	m.logger.Info("incremental update started",
		slog.Int("added", len(changes.Added)),
		slog.Int("modified", len(changes.Modified)),
		slog.Int("deleted", len(changes.Deleted)),
	)

	for _, path := range changes.Deleted {
		if err := m.deletePath(runCtx, path); err != nil {
			return err
		}
	}
	for _, path := range changes.Modified {
		if err := m.deletePath(runCtx, path); err != nil {
			return err
		}
	}

	upserts := append(append([]string(nil), changes.Modified...), changes.Added...)
	items := make([]pathItem, len(upserts))
	for i, rel := range upserts {
		items[i] = pathItem{abs: filepath.Join(m.root, filepath.FromSlash(rel)), rel: rel}
	}

	// Modified paths are already cleared. Added paths are cleared by
	// storeFile, which also catches leftovers of an interrupted store.
	modified := make(map[string]bool, len(changes.Modified))
	for _, path := range changes.Modified {
		modified[path] = true
	}
	p := &pass{m: m, track: newTracker()}
	work := p.readFiles(items, nil, false, nil)
	for _, w := range work {
		w.cleared = modified[w.meta.Path]
	}
	p.chunkFiles(work, nil)
	if err := p.embedFiles(runCtx, work, false); err != nil {
		return err
	}
	for _, w := range work {
		if err := p.storeFile(runCtx, w); err != nil {
			return err
		}
	}

	if err := m.touchStatus(runCtx); err != nil {
		return err
	}

	pr := p.track.snapshot()
	m.logger.Info("incremental update finished",
		slog.Int("stored", len(work)),
		slog.Int("deleted", len(changes.Deleted)),
		slog.Int("chunks", pr.TotalChunks),
		slog.Int("failed_chunks", pr.FailedChunks),
	)
	return nil
}

// touchStatus refreshes file count and timestamp after an incremental update
func (m *IndexManager) touchStatus(ctx context.Context) error {
	files, err := m.cfg.Metadata.GetAllFileMeta(ctx)
	if err != nil {
		return fmt.Errorf("count files: %w", err)
	}
	n := len(files)
	now := time.Now()
	patch := storage.IndexStatusPatch{TotalFiles: &n, LastIndexedAt: &now}
	if m.cfg.Branch != nil {
		branch := m.cfg.Branch(ctx)
		patch.Branch = &branch
	}
	if err := m.cfg.Metadata.UpdateIndexStatus(ctx, patch); err != nil {
		return fmt.Errorf("update index status: %w", err)
	}
	return nil
}

// ApplyChangedPaths classifies repo-relative paths against the disk and the
// store and applies them incrementally. A nil slice means the change set is
// unknown and triggers a full build.
func (m *IndexManager) ApplyChangedPaths(ctx context.Context, paths []string) (types.ChangeSet, error) {
	if paths == nil {
		m.logger.Info("change set unknown, running full build")
		return types.ChangeSet{}, m.Build(ctx, nil)
	}

	accept := func(rel string) bool { return scanner.DetectLanguage(rel) != "" }
	if f, ok := m.cfg.Lister.(interface{ Filter(string) *scanner.Filter }); ok {
		accept = f.Filter(m.root).Accept
	}

	var cs types.ChangeSet
	for _, raw := range paths {
		rel := types.NormalizePath(raw)
		if rel == "" || rel == "." {
			continue
		}

		_, err := m.cfg.Metadata.GetFileMeta(ctx, rel)
		stored := err == nil
		if err != nil && !isNotFound(err) {
			return cs, fmt.Errorf("look up %s: %w", rel, err)
		}

		info, statErr := os.Stat(filepath.Join(m.root, filepath.FromSlash(rel)))
		onDisk := statErr == nil && info.Mode().IsRegular() && accept(rel)

		switch {
		case onDisk && stored:
			cs.Modified = append(cs.Modified, rel)
		case onDisk:
			cs.Added = append(cs.Added, rel)
		case stored:
			cs.Deleted = append(cs.Deleted, rel)
		}
	}

	cs = cs.Normalize()
	if cs.IsEmpty() {
		return cs, nil
	}
	return cs, m.IncrementalUpdate(ctx, cs)
}
