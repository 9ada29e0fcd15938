package indexer

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Profiler records stage durations and counters for one run at a time. It is
// created by the caller and passed in; there is no package-level instance.
type Profiler struct {
	mu       sync.Mutex
	runID    string
	started  time.Time
	stages   map[string]*StageStats
	counters map[string]int64
	now      func() time.Time
}

// StageStats aggregates the timings of one named stage
type StageStats struct {
	Calls int
	Total time.Duration
	Max   time.Duration
}

// StageReport is one row of a Report
type StageReport struct {
	Name string
	StageStats
}

// ProfileReport is an immutable summary of a run
type ProfileReport struct {
	RunID    string
	Elapsed  time.Duration
	Stages   []StageReport
	Counters map[string]int64
}

// NewProfiler creates a profiler with a fresh run ID
func NewProfiler() *Profiler {
	p := &Profiler{now: time.Now}
	p.Reset()
	return p
}

// Reset clears all data and assigns a new run ID
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runID = uuid.NewString()
	p.started = p.now()
	p.stages = make(map[string]*StageStats)
	p.counters = make(map[string]int64)
}

// RunID identifies the current run
func (p *Profiler) RunID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runID
}

// Start begins timing stage and returns the function that stops it
func (p *Profiler) Start(stage string) func() {
	begin := p.now()
	return func() {
		p.observe(stage, p.now().Sub(begin))
	}
}

func (p *Profiler) observe(stage string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stages[stage]
	if !ok {
		s = &StageStats{}
		p.stages[stage] = s
	}
	s.Calls++
	s.Total += d
	if d > s.Max {
		s.Max = d
	}
}

// Add increments a named counter
func (p *Profiler) Add(counter string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters[counter] += int64(n)
}

// Report returns a snapshot sorted by total time, longest first
func (p *Profiler) Report() ProfileReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := ProfileReport{
		RunID:    p.runID,
		Elapsed:  p.now().Sub(p.started),
		Counters: make(map[string]int64, len(p.counters)),
	}
	for name, s := range p.stages {
		r.Stages = append(r.Stages, StageReport{Name: name, StageStats: *s})
	}
	sort.Slice(r.Stages, func(i, j int) bool {
		if r.Stages[i].Total != r.Stages[j].Total {
			return r.Stages[i].Total > r.Stages[j].Total
		}
		return r.Stages[i].Name < r.Stages[j].Name
	})
	for k, v := range p.counters {
		r.Counters[k] = v
	}
	return r
}

// Log writes the summary at info level and one debug line per stage
func (r ProfileReport) Log(logger *slog.Logger) {
	counters := make([]any, 0, len(r.Counters))
	keys := make([]string, 0, len(r.Counters))
	for k := range r.Counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		counters = append(counters, slog.Int64(k, r.Counters[k]))
	}

	logger.Info("indexing profile",
		slog.String("run_id", r.RunID),
		slog.Duration("elapsed", r.Elapsed),
		slog.Group("counters", counters...),
	)
	for _, s := range r.Stages {
		logger.Debug("indexing stage",
			slog.String("run_id", r.RunID),
			slog.String("stage", s.Name),
			slog.Int("calls", s.Calls),
			slog.Duration("total", s.Total),
			slog.Duration("max", s.Max),
		)
	}
}
