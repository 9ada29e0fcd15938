// Package indexer drives the indexing pipeline for one project root.
//
// An IndexManager runs four ordered phases against injected stores:
//
//  1. Scan: list indexable files and read their contents
//  2. Chunk: extract symbols and cut each file into chunks
//  3. Embed: send chunks to the embedding client in bounded parallel batches
//  4. Store: write metadata, chunks, vectors and graph entities per file
//
// # Basic Usage
//
//	mgr, err := indexer.NewIndexManager(indexer.ManagerConfig{
//	    Root:     "/path/to/project",
//	    Metadata: meta,
//	    Vectors:  vectors,
//	    Embedder: client,
//	})
//	if err != nil {
//	    return err
//	}
//	err = mgr.Build(ctx, func(p types.IndexingProgress) {
//	    fmt.Printf("%s %.0f%%\n", p.Status, p.OverallProgress)
//	})
//
// Large repositories use BuildStreaming, which runs all four phases per batch
// of files and saves a checkpoint after every stored batch.
//
// # Fault Tolerance
//
// Embedding failures never fail a build. Chunks whose batch could not be
// embedded are stored without vectors and counted in FailedChunks. Store
// errors fail the run and keep the checkpoint so the next build resumes.
//
// # Checkpoints
//
// CheckpointManager holds the single BuildCheckpoint of a project and saves it
// on a timer while a run is active. A checkpoint whose phase is scanning,
// chunking, embedding or storing is resumable: the next build drops vectors of
// chunks that were embedded but never stored, skips files whose stored hash is
// unchanged and, for streaming builds, skips every path up to the last stored
// one.
//
// # Control
//
// Pause, Resume and Cancel are cooperative. They take effect at phase and
// batch boundaries; embedding calls already in flight are allowed to finish.
//
// # Incremental Updates
//
// IncrementalUpdate applies a ChangeSet. Deleted paths are removed from every
// store. Modified paths are removed and then stored again, so no path ever has
// two generations of chunks. ApplyChangedPaths classifies raw paths, as
// reported by a branch switch or a file watcher, into a ChangeSet first.
package indexer
