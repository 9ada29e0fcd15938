package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeindex/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteMetadataStore {
	// Use in-memory database for testing
	store, err := NewSQLiteMetadataStore(":memory:")
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testChunk(path string, start, end int, content string) types.Chunk {
	c := types.Chunk{
		FilePath:  path,
		Content:   content,
		StartLine: start,
		EndLine:   end,
		Language:  "go",
		Kind:      types.ChunkFunction,
	}
	c.ComputeContentHash()
	c.ComputeID()
	c.ComputeTokenCount()
	return c
}

func TestMigrationsApplied(t *testing.T) {
	store := setupTestDB(t)

	version, err := SchemaVersion(context.Background(), store.DB())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	// Re-applying is a no-op
	require.NoError(t, ApplyMigrations(context.Background(), store.DB()))
}

func TestRollbackMigration(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, RollbackMigration(ctx, store.DB()))
	version, err := SchemaVersion(ctx, store.DB())
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)

	require.NoError(t, ApplyMigrations(ctx, store.DB()))
	version, err = SchemaVersion(ctx, store.DB())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestFileMetaRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	files := []types.FileMetadata{
		{Path: "b.go", ContentHash: "h2", Size: 20, Language: "go", LastModified: modified},
		{Path: "a.go", ContentHash: "h1", Size: 10, Language: "go"},
	}
	require.NoError(t, store.InsertFileMeta(ctx, files))

	got, err := store.GetFileMeta(ctx, "b.go")
	require.NoError(t, err)
	assert.Equal(t, "h2", got.ContentHash)
	assert.Equal(t, int64(20), got.Size)
	assert.True(t, got.LastModified.Equal(modified))

	all, err := store.GetAllFileMeta(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a.go", all[0].Path)

	// Replace wholesale
	require.NoError(t, store.InsertFileMeta(ctx, []types.FileMetadata{{Path: "a.go", ContentHash: "h3"}}))
	got, err = store.GetFileMeta(ctx, "a.go")
	require.NoError(t, err)
	assert.Equal(t, "h3", got.ContentHash)

	require.NoError(t, store.DeleteFileMeta(ctx, []string{"a.go", "missing.go"}))
	_, err = store.GetFileMeta(ctx, "a.go")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertFileMeta_RejectsAbsolutePath(t *testing.T) {
	store := setupTestDB(t)
	err := store.InsertFileMeta(context.Background(), []types.FileMetadata{{Path: "/abs.go", ContentHash: "h"}})
	assert.ErrorIs(t, err, types.ErrAbsolutePath)
}

func TestChunksAndFTS(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	chunks := []types.Chunk{
		testChunk("auth/login.go", 1, 10, "func Login(user string) error { return validatePassword(user) }"),
		testChunk("auth/login.go", 12, 20, "func Logout() {}"),
		testChunk("db/conn.go", 1, 5, "func Connect(dsn string) (*DB, error)"),
	}
	chunks[0].Symbol = "Login"
	chunks[0].ComputeID()
	require.NoError(t, store.InsertChunks(ctx, chunks))

	got, err := store.GetChunksByFilePath(ctx, "auth/login.go")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].StartLine)
	assert.Equal(t, "Login", got[0].Symbol)
	assert.Equal(t, types.ChunkFunction, got[0].Kind)

	results, err := store.SearchFTS(ctx, "validatePassword", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunks[0].ID, results[0].Chunk.ID)
	assert.Greater(t, results[0].Score, 0.0)

	// Path column is searchable too
	results, err = store.SearchFTS(ctx, "conn", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "db/conn.go", results[0].Chunk.FilePath)

	// FTS follows deletions through the triggers
	require.NoError(t, store.DeleteChunksByFilePath(ctx, []string{"auth/login.go"}))
	results, err = store.SearchFTS(ctx, "validatePassword", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	got, err = store.GetChunksByFilePath(ctx, "auth/login.go")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchFTS_OperatorsAreLiteral(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.InsertChunks(ctx, []types.Chunk{testChunk("a.go", 1, 1, "NOT a problem")}))

	_, err := store.SearchFTS(ctx, `"*()`, 10)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	results, err := store.SearchFTS(ctx, "NOT (problem", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestGetRecentChunks(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	tick := time.Unix(1000, 0)
	store.now = func() time.Time { tick = tick.Add(time.Second); return tick }

	require.NoError(t, store.InsertChunks(ctx, []types.Chunk{testChunk("old.go", 1, 1, "old")}))
	require.NoError(t, store.InsertChunks(ctx, []types.Chunk{testChunk("new.go", 1, 1, "new")}))

	recent, err := store.GetRecentChunks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new.go", recent[0].FilePath)
}

func TestDeleteChunksByFilePath_ManyPaths(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	var chunks []types.Chunk
	var paths []string
	for i := 0; i < maxBindVars+10; i++ {
		p := fmt.Sprintf("f%04d.go", i)
		paths = append(paths, p)
		chunks = append(chunks, testChunk(p, 1, 1, "x"))
	}
	require.NoError(t, store.InsertChunks(ctx, chunks))
	require.NoError(t, store.DeleteChunksByFilePath(ctx, paths))

	recent, err := store.GetRecentChunks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestEmbeddingCache(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_, err := store.GetEmbeddingCache(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SetEmbeddingCache(ctx, "k", []float32{0.5, -1, 2}))
	vec, err := store.GetEmbeddingCache(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 2}, vec)

	require.NoError(t, store.SetEmbeddingCache(ctx, "k", []float32{1}))
	vec, err = store.GetEmbeddingCache(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
}

func TestIndexStatus(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	st, err := store.GetIndexStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusIdle, st.Status)

	done := types.StatusDone
	files, chunks := 3, 12
	branch := "main"
	require.NoError(t, store.UpdateIndexStatus(ctx, IndexStatusPatch{
		Status: &done, TotalFiles: &files, TotalChunks: &chunks, Branch: &branch,
	}))

	failed := 2
	require.NoError(t, store.UpdateIndexStatus(ctx, IndexStatusPatch{FailedChunks: &failed}))

	st, err = store.GetIndexStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, st.Status)
	assert.Equal(t, 3, st.TotalFiles)
	assert.Equal(t, 12, st.TotalChunks)
	assert.Equal(t, 2, st.FailedChunks)
	assert.Equal(t, "main", st.Branch)
	assert.False(t, st.UpdatedAt.IsZero())
}

func TestCheckpointRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_, err := store.GetCheckpoint(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	cp := &types.BuildCheckpoint{
		RunID:             "run-1",
		Phase:             types.StatusEmbedding,
		LastProcessedPath: "pkg/x.go",
		PendingChunkIDs:   []string{"c1", "c2"},
		Streaming:         true,
		Model:             "local",
	}
	require.NoError(t, store.SaveCheckpoint(ctx, cp))

	got, err := store.GetCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, cp.RunID, got.RunID)
	assert.Equal(t, types.StatusEmbedding, got.Phase)
	assert.Equal(t, []string{"c1", "c2"}, got.PendingChunkIDs)
	assert.True(t, got.Streaming)
	assert.False(t, got.UpdatedAt.IsZero())

	// Overwritten, never appended
	cp.Phase = types.StatusStoring
	cp.PendingChunkIDs = nil
	require.NoError(t, store.SaveCheckpoint(ctx, cp))
	got, err = store.GetCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusStoring, got.Phase)
	assert.Empty(t, got.PendingChunkIDs)

	require.NoError(t, store.ClearCheckpoint(ctx))
	_, err = store.GetCheckpoint(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}
