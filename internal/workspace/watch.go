package workspace

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/codeindex/internal/indexer"
	"github.com/dshills/codeindex/internal/watcher"
)

// Watch keeps the index current until ctx is done. File changes are applied
// in debounced batches; when the root is a git repository the branch is also
// polled and a switch is turned into an update.
func (ws *Workspace) Watch(ctx context.Context) error {
	w, err := watcher.New(ws.Root, watcher.Options{
		Debounce: ws.Config.Watch.Debounce,
		Filter:   ws.Lister.Filter(ws.Root),
		Logger:   ws.logger,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(ctx, ws.applyBatch)
	})

	g.Go(func() error {
		ws.retryDeferred(ctx, ws.Config.Watch.Debounce)
		return nil
	})

	if interval := ws.Config.VCS.PollInterval; interval > 0 && ws.Branch.IsRepository(ctx) {
		g.Go(func() error {
			ws.pollBranch(ctx, interval)
			return nil
		})
	}
	return g.Wait()
}

func (ws *Workspace) applyBatch(ctx context.Context, paths []string) error {
	cs, err := ws.Update(ctx, paths)
	if errors.Is(err, indexer.ErrBuildInProgress) {
		ws.logger.Info("index busy, change batch deferred", slog.Int("paths", len(paths)))
		return nil
	}
	if err != nil {
		return err
	}
	ws.logger.Info("index updated",
		slog.Int("added", len(cs.Added)),
		slog.Int("modified", len(cs.Modified)),
		slog.Int("deleted", len(cs.Deleted)),
	)
	return nil
}

func (ws *Workspace) pollBranch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ws.Branch.CheckBranchChange(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ws.Branch.CheckBranchChange(ctx)
		}
	}
}

// retryDeferred applies deferred changes once the running build is over,
// even when no new file event arrives to carry them
func (ws *Workspace) retryDeferred(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ws.deferred.empty() || ws.Manager.Running() {
				continue
			}
			if err := ws.applyBatch(ctx, []string{}); err != nil {
				ws.logger.Warn("deferred update failed", slog.String("error", err.Error()))
			}
		}
	}
}
