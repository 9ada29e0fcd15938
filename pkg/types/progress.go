package types

import "time"

// Status is the state of an indexing run. The in-progress values double as
// checkpoint phases.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusScanning  Status = "scanning"
	StatusChunking  Status = "chunking"
	StatusEmbedding Status = "embedding"
	StatusStoring   Status = "storing"
	StatusPaused    Status = "paused"
	StatusDone      Status = "done"
	StatusError     Status = "error"
)

// InProgress reports whether s is one of the four pipeline phases
func (s Status) InProgress() bool {
	switch s {
	case StatusScanning, StatusChunking, StatusEmbedding, StatusStoring:
		return true
	default:
		return false
	}
}

// PhaseNumber maps a pipeline phase to its ordinal (1-4). Everything else is 0.
func (s Status) PhaseNumber() int {
	switch s {
	case StatusScanning:
		return 1
	case StatusChunking:
		return 2
	case StatusEmbedding:
		return 3
	case StatusStoring:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusScanning, StatusChunking, StatusEmbedding, StatusStoring,
		StatusPaused, StatusDone, StatusError:
		return true
	default:
		return false
	}
}

// IndexingProgress is the in-memory view of the current run.
// Only the IndexManager mutates the live instance; readers get a copy.
type IndexingProgress struct {
	Status          Status
	Phase           int     // 0-4, never decreases within a run
	PhaseProgress   float64 // 0-100 within the current phase
	OverallProgress float64 // 0-100, exactly 100 when Status is done

	ScannedFiles   int
	TotalFiles     int
	SkippedFiles   int
	ChunkedFiles   int
	EmbeddedChunks int
	FailedChunks   int
	TotalChunks    int
	StoredChunks   int

	StartTime time.Time
	Error     string
}
