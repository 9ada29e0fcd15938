// Package types provides shared type definitions for the codeindex engine.
//
// These are the records that flow through the indexing pipeline and across the
// store contracts: the file system is scanned into FileMetadata, files are split
// into Chunks, chunks are embedded and stored, and Go sources additionally yield
// graph Entities and Relations.
//
// # Core Types
//
// FileMetadata is keyed by its repo-relative path:
//
//	meta := types.FileMetadata{
//	    Path:        "internal/indexer/manager.go",
//	    ContentHash: "9f86d0…",
//	    Language:    "go",
//	}
//
// Chunk is the unit of indexable content. All chunks of a path are replaced
// together; a path never has two generations of chunks live at once.
//
// # Pipeline State
//
// IndexingProgress is the in-memory view of a run, handed to readers as a copy.
// BuildCheckpoint is the single persisted record that makes a run resumable:
//
//	if cp.IsResumable() {
//	    // scanning, chunking, embedding or storing
//	}
//
// Status doubles as the checkpoint phase. Only the four in-progress statuses
// denote a resumable checkpoint; idle, done and error never do.
package types
