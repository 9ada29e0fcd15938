package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/codeindex/internal/storage"
	"github.com/dshills/codeindex/pkg/types"
)

// DefaultCheckpointInterval is the autosave period used when none is configured
const DefaultCheckpointInterval = 30 * time.Second

// CheckpointManager owns the single BuildCheckpoint of a project. Mutators
// only touch memory; Save and the autosave timer persist it.
type CheckpointManager struct {
	store    storage.CheckpointStore
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex
	cp *types.BuildCheckpoint

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewCheckpointManager creates a manager persisting to store. A non-positive
// interval disables autosave.
func NewCheckpointManager(store storage.CheckpointStore, interval time.Duration, logger *slog.Logger) *CheckpointManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckpointManager{
		store:    store,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start loads the persisted checkpoint, if any, and starts autosave. It
// returns nil when nothing is stored. The returned value is a copy.
func (m *CheckpointManager) Start(ctx context.Context) (*types.BuildCheckpoint, error) {
	cp, err := m.store.GetCheckpoint(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	m.mu.Lock()
	m.cp = cp
	if m.stopCh == nil && m.interval > 0 {
		m.stopCh = make(chan struct{})
		m.doneCh = make(chan struct{})
		go m.autosave(m.stopCh, m.doneCh)
	}
	m.mu.Unlock()

	return cp.Clone(), nil
}

// Stop cancels autosave. Later mutations are not persisted unless Save is
// called. Safe to call more than once.
func (m *CheckpointManager) Stop() {
	m.mu.Lock()
	stop, done := m.stopCh, m.doneCh
	m.stopCh, m.doneCh = nil, nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (m *CheckpointManager) autosave(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := m.Save(ctx); err != nil {
				m.logger.Warn("checkpoint autosave failed", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}

// Begin replaces the in-memory checkpoint with a fresh one for a new run
func (m *CheckpointManager) Begin(runID string, streaming bool, model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp = &types.BuildCheckpoint{
		RunID:     runID,
		Phase:     types.StatusIdle,
		Streaming: streaming,
		Model:     model,
		UpdatedAt: m.now(),
	}
}

// ensure returns the live checkpoint, creating an empty one. Callers hold mu.
func (m *CheckpointManager) ensure() *types.BuildCheckpoint {
	if m.cp == nil {
		m.cp = &types.BuildCheckpoint{Phase: types.StatusIdle}
	}
	return m.cp
}

// SetPhase records the current phase
func (m *CheckpointManager) SetPhase(phase types.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure().Phase = phase
}

// SetLastProcessedPath records the last fully stored path
func (m *CheckpointManager) SetLastProcessedPath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure().LastProcessedPath = path
}

// SetPendingChunkIDs replaces the pending set
func (m *CheckpointManager) SetPendingChunkIDs(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure().PendingChunkIDs = append([]string(nil), ids...)
}

// AddPendingChunkIDs appends ids not already pending
func (m *CheckpointManager) AddPendingChunkIDs(ids []string) {
	if len(ids) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := m.ensure()
	have := make(map[string]bool, len(cp.PendingChunkIDs))
	for _, id := range cp.PendingChunkIDs {
		have[id] = true
	}
	for _, id := range ids {
		if !have[id] {
			have[id] = true
			cp.PendingChunkIDs = append(cp.PendingChunkIDs, id)
		}
	}
}

// RemovePendingChunkIDs drops ids from the pending set
func (m *CheckpointManager) RemovePendingChunkIDs(ids []string) {
	if len(ids) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cp == nil || len(m.cp.PendingChunkIDs) == 0 {
		return
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.cp.PendingChunkIDs[:0]
	for _, id := range m.cp.PendingChunkIDs {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	m.cp.PendingChunkIDs = kept
}

// Save persists the in-memory checkpoint. It is a no-op when there is none.
func (m *CheckpointManager) Save(ctx context.Context) error {
	m.mu.Lock()
	if m.cp == nil {
		m.mu.Unlock()
		return nil
	}
	m.cp.UpdatedAt = m.now()
	snapshot := m.cp.Clone()
	m.mu.Unlock()

	if err := m.store.SaveCheckpoint(ctx, snapshot); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Clear removes the checkpoint from memory and the store
func (m *CheckpointManager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.cp = nil
	m.mu.Unlock()

	if err := m.store.ClearCheckpoint(ctx); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// HasValidCheckpoint reports whether the checkpoint marks an interrupted
// phase. Idle, done, error and paused checkpoints are not resumable.
func (m *CheckpointManager) HasValidCheckpoint() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cp.IsResumable()
}

// GetResumePhase returns the phase to resume into
func (m *CheckpointManager) GetResumePhase() (types.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cp.IsResumable() {
		return "", false
	}
	return m.cp.Phase, true
}

// Current returns a copy of the in-memory checkpoint, or nil
func (m *CheckpointManager) Current() *types.BuildCheckpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cp.Clone()
}
