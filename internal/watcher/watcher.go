package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/codeindex/internal/scanner"
)

// DefaultDebounce is the quiet period before pending changes are flushed
const DefaultDebounce = 500 * time.Millisecond

// Handler receives a batch of changed repo-relative paths. Paths may name
// files that were created, written, removed or renamed away.
type Handler func(ctx context.Context, paths []string) error

// Options configures a Watcher
type Options struct {
	Debounce time.Duration
	Filter   *scanner.Filter // nil accepts every file with a known language
	Logger   *slog.Logger
}

// Watcher turns file system events under a root into debounced path batches
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	filter   *scanner.Filter
	debounce time.Duration
	logger   *slog.Logger
	pending  map[string]struct{}
}

// New creates a watcher for root. Run starts it.
func New(root string, opts Options) (*Watcher, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		root:     root,
		fsw:      fsw,
		filter:   opts.Filter,
		debounce: opts.Debounce,
		logger:   opts.Logger.With(slog.String("component", "watcher")),
		pending:  make(map[string]struct{}),
	}, nil
}

// Run watches until ctx is done and calls handle with each debounced batch.
// Handler errors are logged. Run closes the watcher before returning.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	defer w.fsw.Close()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.logger.Info("watching for changes", slog.String("root", w.root), slog.Duration("debounce", w.debounce))

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.handleEvent(ev) {
				timer.Reset(w.debounce)
				timerC = timer.C
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("event queue overflowed, changes may be missed")
				continue
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))

		case <-timerC:
			timerC = nil
			paths := w.drain()
			if len(paths) == 0 {
				continue
			}
			w.logger.Debug("flushing changes", slog.Int("paths", len(paths)))
			if err := handle(ctx, paths); err != nil {
				w.logger.Warn("applying changes failed", slog.Int("paths", len(paths)), slog.String("error", err.Error()))
			}
		}
	}
}

// handleEvent records ev and reports whether it is relevant
func (w *Watcher) handleEvent(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	rel, err := scanner.RelPath(w.root, ev.Name)
	if err != nil {
		return false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.filter != nil && w.filter.SkipDir(rel) {
				return false
			}
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Warn("watching new directory failed", slog.String("path", rel), slog.String("error", err.Error()))
			}
			// Files created before the watch was added would be missed.
			return w.addExisting(ev.Name)
		}
	}

	if !w.accept(rel) {
		return false
	}
	w.pending[rel] = struct{}{}
	return true
}

func (w *Watcher) accept(rel string) bool {
	if w.filter != nil {
		return w.filter.Accept(rel)
	}
	return scanner.DetectLanguage(rel) != ""
}

// addRecursive watches dir and every subdirectory the filter does not skip
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != w.root && w.filter != nil {
			if rel, rerr := scanner.RelPath(w.root, p); rerr == nil && w.filter.SkipDir(rel) {
				return filepath.SkipDir
			}
		}
		if err := w.fsw.Add(p); err != nil {
			if p == w.root {
				return fmt.Errorf("watch %s: %w", p, err)
			}
			w.logger.Debug("cannot watch directory", slog.String("path", p), slog.String("error", err.Error()))
		}
		return nil
	})
}

// addExisting queues accepted files already present under a new directory
func (w *Watcher) addExisting(dir string) bool {
	added := false
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, rerr := scanner.RelPath(w.root, p); rerr == nil && w.accept(rel) {
			w.pending[rel] = struct{}{}
			added = true
		}
		return nil
	})
	return added
}

// drain returns the pending paths sorted and clears them
func (w *Watcher) drain() []string {
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	clear(w.pending)
	sort.Strings(paths)
	return paths
}
