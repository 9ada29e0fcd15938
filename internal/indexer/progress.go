package indexer

import (
	"sync"
	"time"

	"github.com/dshills/codeindex/pkg/types"
)

// ProgressFunc receives a copy of the progress after every update. It runs
// on the goroutine driving the build and may call Pause, Resume or Cancel.
type ProgressFunc func(types.IndexingProgress)

// phaseSpan is the slice of overall progress owned by each phase
var phaseSpan = map[types.Status][2]float64{
	types.StatusScanning:  {0, 10},
	types.StatusChunking:  {10, 25},
	types.StatusEmbedding: {25, 85},
	types.StatusStoring:   {85, 100},
}

// tracker guards the live IndexingProgress. While paused, phase changes are
// remembered and applied on resume. Once stopped, updates are ignored until
// the next reset. Streaming runs repeat phases per batch, so phase progress
// does not drive overall progress there.
type tracker struct {
	mu        sync.Mutex
	p         types.IndexingProgress
	paused    bool
	resumeTo  types.Status
	stopped   bool
	streaming bool
	now       func() time.Time
	onChange  ProgressFunc
}

func newTracker() *tracker {
	return &tracker{
		p:   types.IndexingProgress{Status: types.StatusIdle},
		now: time.Now,
	}
}

// reset starts a new run. A pause requested before the run started survives.
func (t *tracker) reset(fn ProgressFunc, streaming bool) {
	t.mu.Lock()
	t.p = types.IndexingProgress{Status: types.StatusIdle, StartTime: t.now()}
	t.streaming = streaming
	if t.paused {
		t.p.Status = types.StatusPaused
		t.resumeTo = types.StatusIdle
	}
	t.stopped = false
	t.onChange = fn
	t.mu.Unlock()
}

func (t *tracker) snapshot() types.IndexingProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.p
}

// update applies fn and notifies the listener. Only the run goroutine calls
// it; workers use mutate and the run goroutine publishes with flush.
func (t *tracker) update(fn func(p *types.IndexingProgress)) {
	if t.mutate(fn) {
		t.flush()
	}
}

// mutate applies fn without notifying
func (t *tracker) mutate(fn func(p *types.IndexingProgress)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	fn(&t.p)
	return true
}

// flush sends the current progress to the listener
func (t *tracker) flush() {
	t.mu.Lock()
	snap, fn := t.p, t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}

// enter moves to a pipeline phase. Phase never decreases within a run.
func (t *tracker) enter(status types.Status) {
	t.update(func(p *types.IndexingProgress) {
		if n := status.PhaseNumber(); n > p.Phase {
			p.Phase = n
		}
		p.PhaseProgress = 0
		if t.paused {
			t.resumeTo = status
		} else {
			p.Status = status
		}
		if span, ok := phaseSpan[status]; ok && !t.streaming && span[0] > p.OverallProgress {
			p.OverallProgress = span[0]
		}
	})
}

// advance sets progress within the current phase (0-1) and derives overall
// progress from the phase weights.
func (t *tracker) advance(status types.Status, frac float64) {
	frac = clamp01(frac)
	t.update(func(p *types.IndexingProgress) {
		p.PhaseProgress = frac * 100
		if span, ok := phaseSpan[status]; ok && !t.streaming {
			overall := span[0] + (span[1]-span[0])*frac
			if overall > p.OverallProgress {
				p.OverallProgress = overall
			}
		}
	})
}

// overall sets overall progress directly; used by streaming builds where
// phases repeat per batch.
func (t *tracker) overall(pct float64) {
	t.update(func(p *types.IndexingProgress) {
		if pct > p.OverallProgress {
			p.OverallProgress = min(pct, 99.9)
		}
	})
}

// pause switches to paused and returns the status being suspended. Pause,
// resume and halt may run on any goroutine and do not notify.
func (t *tracker) pause() types.Status {
	t.mu.Lock()
	if t.paused {
		prev := t.resumeTo
		t.mu.Unlock()
		return prev
	}
	t.paused = true
	t.resumeTo = t.p.Status
	t.p.Status = types.StatusPaused
	prev := t.resumeTo
	t.mu.Unlock()
	return prev
}

// resume restores the suspended status
func (t *tracker) resume() bool {
	t.mu.Lock()
	if !t.paused {
		t.mu.Unlock()
		return false
	}
	t.paused = false
	if !t.stopped {
		t.p.Status = t.resumeTo
	}
	t.mu.Unlock()
	return true
}

func (t *tracker) isPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// finish sets a terminal status and freezes the tracker
func (t *tracker) finish(status types.Status, errMsg string) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.paused = false
	t.p.Status = status
	t.p.Error = errMsg
	if status == types.StatusDone {
		t.p.OverallProgress = 100
		t.p.PhaseProgress = 100
	}
	t.stopped = true
	snap, fn := t.p, t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}

// halt forces idle regardless of state, as Cancel does
func (t *tracker) halt() {
	t.mu.Lock()
	t.paused = false
	t.p.Status = types.StatusIdle
	t.stopped = true
	t.mu.Unlock()
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
