// Package storage provides the three stores the indexing pipeline writes to.
//
// The storage layer manages:
//   - File metadata and content hashes (MetadataStore)
//   - Chunks and their FTS5 full-text index (MetadataStore)
//   - The persistent embedding cache (MetadataStore)
//   - Index status and the single build checkpoint (MetadataStore)
//   - One vector per chunk (VectorStore, chromem-go)
//   - Entities and relations extracted from source (GraphStore)
//
// # Database Schema
//
// Tables:
//   - files: repo-relative path, SHA-256 content hash, size, language
//   - chunks: chunk content keyed by stable chunk ID
//   - chunks_fts: FTS5 index over chunk content, symbol and path
//   - embedding_cache: vectors keyed by model and content hash
//   - index_status, checkpoint: single-row tables
//   - entities, relations: the code graph (schema 1.1.0)
//
// # Basic Usage
//
//	meta, err := storage.NewSQLiteMetadataStore(".codeindex/index.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer meta.Close()
//
//	graph := storage.NewSQLiteGraphStore(meta.DB())
//	vectors := storage.NewChromemVectorStore(".codeindex/vectors.gob.gz")
//	if err := vectors.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// All three stores are keyed by repo-relative path so a file can be removed from
// each of them independently with DeleteFileMeta, DeleteChunksByFilePath and
// DeleteByFilePath.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go). Building with
// -tags sqlite_vec switches to github.com/mattn/go-sqlite3.
package storage
