package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

const defaultCollection = "chunks"

// errEmbedOnQuery is returned if chromem ever tries to embed text itself.
// Every document and query carries its own vector.
var errEmbedOnQuery = errors.New("vector store requires precomputed embeddings")

// ChromemVectorStore implements VectorStore with an in-process chromem-go collection.
// When SnapshotPath is set the collection is loaded from it on Initialize and
// written to it by Optimize.
type ChromemVectorStore struct {
	mu           sync.RWMutex
	db           *chromem.DB
	collection   *chromem.Collection
	name         string
	snapshotPath string
}

var _ VectorStore = (*ChromemVectorStore)(nil)

// NewChromemVectorStore creates an unopened store. snapshotPath may be empty.
func NewChromemVectorStore(snapshotPath string) *ChromemVectorStore {
	return &ChromemVectorStore{
		db:           chromem.NewDB(),
		name:         defaultCollection,
		snapshotPath: snapshotPath,
	}
}

func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errEmbedOnQuery
}

// Initialize loads the snapshot, if any, and opens the collection
func (s *ChromemVectorStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshotPath != "" {
		if _, err := os.Stat(s.snapshotPath); err == nil {
			if err := s.db.ImportFromFile(s.snapshotPath, ""); err != nil {
				return fmt.Errorf("failed to import vector snapshot: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat vector snapshot: %w", err)
		}
	}

	col, err := s.db.GetOrCreateCollection(s.name, nil, noEmbed)
	if err != nil {
		return fmt.Errorf("failed to open collection: %w", err)
	}
	s.collection = col
	return nil
}

func (s *ChromemVectorStore) col() (*chromem.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.collection == nil {
		return nil, errors.New("vector store not initialized")
	}
	return s.collection, nil
}

// InsertBatch adds or replaces one document per chunk
func (s *ChromemVectorStore) InsertBatch(ctx context.Context, docs []VectorDocument) error {
	if len(docs) == 0 {
		return nil
	}
	col, err := s.col()
	if err != nil {
		return err
	}

	chromDocs := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		if len(d.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", d.Chunk.ID)
		}
		chromDocs = append(chromDocs, chromem.Document{
			ID:        d.Chunk.ID,
			Content:   d.Chunk.Content,
			Embedding: append([]float32(nil), d.Embedding...),
			Metadata: map[string]string{
				"file_path":  d.Chunk.FilePath,
				"start_line": strconv.Itoa(d.Chunk.StartLine),
				"end_line":   strconv.Itoa(d.Chunk.EndLine),
				"language":   d.Chunk.Language,
				"symbol":     d.Chunk.Symbol,
			},
		})
	}

	if err := col.AddDocuments(ctx, chromDocs, 1); err != nil {
		return fmt.Errorf("failed to add vectors: %w", err)
	}
	return nil
}

// Query returns up to limit nearest chunks by cosine similarity
func (s *ChromemVectorStore) Query(ctx context.Context, embedding []float32, limit int, filter *VectorFilter) ([]VectorResult, error) {
	col, err := s.col()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	// chromem-go requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	var where map[string]string
	if filter != nil {
		where = make(map[string]string)
		if filter.FilePath != "" {
			where["file_path"] = filter.FilePath
		}
		if filter.Language != "" {
			where["language"] = filter.Language
		}
		if len(where) == 0 {
			where = nil
		}
	}

	results, err := col.QueryEmbedding(ctx, embedding, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]VectorResult, len(results))
	for i, r := range results {
		start, _ := strconv.Atoi(r.Metadata["start_line"])
		end, _ := strconv.Atoi(r.Metadata["end_line"])
		out[i] = VectorResult{
			ChunkID:    r.ID,
			FilePath:   r.Metadata["file_path"],
			StartLine:  start,
			EndLine:    end,
			Content:    r.Content,
			Similarity: r.Similarity,
		}
	}
	return out, nil
}

// DeleteByFilePath removes every vector of a file
func (s *ChromemVectorStore) DeleteByFilePath(ctx context.Context, path string) error {
	col, err := s.col()
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, map[string]string{"file_path": path}, nil); err != nil {
		return fmt.Errorf("failed to delete vectors for %s: %w", path, err)
	}
	return nil
}

// DeleteByChunkIDs removes vectors by chunk ID. Unknown IDs are ignored.
func (s *ChromemVectorStore) DeleteByChunkIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := s.col()
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

// Optimize writes a compressed snapshot when a snapshot path is configured
func (s *ChromemVectorStore) Optimize(ctx context.Context) error {
	if s.snapshotPath == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.db.ExportToFile(s.snapshotPath, true, ""); err != nil {
		return fmt.Errorf("failed to export vector snapshot: %w", err)
	}
	return nil
}

// Destroy drops the collection and removes the snapshot
func (s *ChromemVectorStore) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	s.collection = nil
	if s.snapshotPath != "" {
		if err := os.Remove(s.snapshotPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove vector snapshot: %w", err)
		}
	}
	return nil
}

// Count returns the number of stored vectors
func (s *ChromemVectorStore) Count() int {
	col, err := s.col()
	if err != nil {
		return 0
	}
	return col.Count()
}
