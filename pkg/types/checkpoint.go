package types

import "time"

// BuildCheckpoint is the single persisted marker of build progress for a project.
// It is overwritten in place, never appended.
type BuildCheckpoint struct {
	RunID             string
	Phase             Status
	LastProcessedPath string
	// PendingChunkIDs are chunks embedded but not yet durably stored
	PendingChunkIDs []string
	Streaming       bool
	Model           string
	UpdatedAt       time.Time
}

// IsResumable reports whether the checkpoint denotes an interrupted phase
func (c *BuildCheckpoint) IsResumable() bool {
	return c != nil && c.Phase.InProgress()
}

// Clone returns a deep copy
func (c *BuildCheckpoint) Clone() *BuildCheckpoint {
	if c == nil {
		return nil
	}
	out := *c
	if c.PendingChunkIDs != nil {
		out.PendingChunkIDs = append([]string(nil), c.PendingChunkIDs...)
	}
	return &out
}
