package storage

import (
	"context"
	"time"

	"github.com/dshills/codeindex/pkg/types"
)

// FileStore persists FileMetadata keyed by repo-relative path
type FileStore interface {
	InsertFileMeta(ctx context.Context, files []types.FileMetadata) error
	GetFileMeta(ctx context.Context, path string) (*types.FileMetadata, error)
	GetAllFileMeta(ctx context.Context) ([]types.FileMetadata, error)
	DeleteFileMeta(ctx context.Context, paths []string) error
}

// ChunkStore persists chunks and their full-text index
type ChunkStore interface {
	InsertChunks(ctx context.Context, chunks []types.Chunk) error
	GetChunksByFilePath(ctx context.Context, path string) ([]types.Chunk, error)
	DeleteChunksByFilePath(ctx context.Context, paths []string) error
	SearchFTS(ctx context.Context, query string, limit int) ([]TextResult, error)
	GetRecentChunks(ctx context.Context, limit int) ([]types.Chunk, error)
}

// EmbeddingCache persists vectors keyed by a content-derived key.
// GetEmbeddingCache returns ErrNotFound on a miss.
type EmbeddingCache interface {
	GetEmbeddingCache(ctx context.Context, key string) ([]float32, error)
	SetEmbeddingCache(ctx context.Context, key string, vector []float32) error
}

// CheckpointStore persists the single build checkpoint of a project.
// GetCheckpoint returns ErrNotFound when none is stored.
type CheckpointStore interface {
	GetCheckpoint(ctx context.Context) (*types.BuildCheckpoint, error)
	SaveCheckpoint(ctx context.Context, cp *types.BuildCheckpoint) error
	ClearCheckpoint(ctx context.Context) error
}

// MetadataStore is the metadata, full-text, cache and checkpoint store
type MetadataStore interface {
	FileStore
	ChunkStore
	EmbeddingCache
	CheckpointStore

	GetIndexStatus(ctx context.Context) (*IndexStatus, error)
	UpdateIndexStatus(ctx context.Context, patch IndexStatusPatch) error

	Close() error
}

// VectorStore holds one embedding per chunk
type VectorStore interface {
	Initialize(ctx context.Context) error
	InsertBatch(ctx context.Context, docs []VectorDocument) error
	Query(ctx context.Context, embedding []float32, limit int, filter *VectorFilter) ([]VectorResult, error)
	DeleteByFilePath(ctx context.Context, path string) error
	DeleteByChunkIDs(ctx context.Context, ids []string) error
	// Optimize is a compaction hint, called once per full build
	Optimize(ctx context.Context) error
	Destroy(ctx context.Context) error
}

// GraphStore holds entities and relations extracted from source files
type GraphStore interface {
	Initialize(ctx context.Context) error
	InsertEntities(ctx context.Context, entities []types.Entity) error
	InsertRelations(ctx context.Context, relations []types.Relation) error
	GetEntitiesByChunkIDs(ctx context.Context, ids []string) ([]types.Entity, error)
	Query(ctx context.Context, q GraphQuery) (*GraphResult, error)
	DeleteByFilePath(ctx context.Context, path string) error
	GetStats(ctx context.Context) (*GraphStats, error)
	Close() error
}

// IndexStatus is the persisted summary of the last run
type IndexStatus struct {
	Status         types.Status
	TotalFiles     int
	TotalChunks    int
	EmbeddedChunks int
	FailedChunks   int
	Branch         string
	Model          string
	LastIndexedAt  time.Time
	UpdatedAt      time.Time
}

// IndexStatusPatch is a partial update; nil fields are left untouched
type IndexStatusPatch struct {
	Status         *types.Status
	TotalFiles     *int
	TotalChunks    *int
	EmbeddedChunks *int
	FailedChunks   *int
	Branch         *string
	Model          *string
	LastIndexedAt  *time.Time
}

// VectorDocument pairs a chunk with its embedding
type VectorDocument struct {
	Chunk     types.Chunk
	Embedding []float32
}

// VectorFilter narrows a vector query by exact metadata match
type VectorFilter struct {
	FilePath string
	Language string
}

// VectorResult is one hit of a vector query
type VectorResult struct {
	ChunkID    string
	FilePath   string
	StartLine  int
	EndLine    int
	Content    string
	Similarity float32
}

// TextResult is one hit of a full-text query
type TextResult struct {
	Chunk types.Chunk
	Score float64 // Normalized BM25, higher is better
}

// GraphQuery selects entities. Empty fields match everything.
type GraphQuery struct {
	Name             string // Prefix match on entity name
	Kind             types.SymbolKind
	FilePath         string
	Limit            int
	IncludeRelations bool
}

// GraphResult holds matched entities and, if requested, their outgoing relations
type GraphResult struct {
	Entities  []types.Entity
	Relations []types.Relation
}

// GraphStats summarizes the graph index
type GraphStats struct {
	Entities       int
	Relations      int
	Files          int
	EntitiesByKind map[types.SymbolKind]int
}
