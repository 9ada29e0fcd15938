package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeindex/pkg/types"
)

func setupGraph(t *testing.T) *SQLiteGraphStore {
	meta := setupTestDB(t)
	g := NewSQLiteGraphStore(meta.DB())
	require.NoError(t, g.Initialize(context.Background()))
	return g
}

func TestGraphStore_InsertAndQuery(t *testing.T) {
	g := setupGraph(t)
	ctx := context.Background()

	server := types.Entity{Name: "Server", Kind: types.KindStruct, FilePath: "srv.go", ChunkID: "c1", StartLine: 3, EndLine: 10}
	serve := types.Entity{Name: "Serve", Kind: types.KindMethod, FilePath: "srv.go", ChunkID: "c2", StartLine: 12, EndLine: 20}
	helper := types.Entity{Name: "helper", Kind: types.KindFunction, FilePath: "util.go", ChunkID: "c3", StartLine: 1, EndLine: 4}
	entities := []types.Entity{server, serve, helper}
	require.NoError(t, g.InsertEntities(ctx, entities))
	// IDs are assigned in place
	for _, e := range entities {
		require.NotEmpty(t, e.ID)
	}

	require.NoError(t, g.InsertRelations(ctx, []types.Relation{
		{SourceID: entities[1].ID, TargetID: entities[0].ID, TargetName: "Server", Kind: types.RelationMethodOf, FilePath: "srv.go"},
		{SourceID: entities[1].ID, TargetName: "net/http", Kind: types.RelationImports, FilePath: "srv.go"},
		{SourceID: entities[1].ID, TargetName: "net/http", Kind: types.RelationImports, FilePath: "srv.go"},
	}))

	res, err := g.Query(ctx, GraphQuery{Name: "Serv"})
	require.NoError(t, err)
	assert.Len(t, res.Entities, 2)
	assert.Empty(t, res.Relations)

	res, err = g.Query(ctx, GraphQuery{Kind: types.KindMethod, IncludeRelations: true})
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "Serve", res.Entities[0].Name)
	assert.Len(t, res.Relations, 2, "duplicate relations are ignored")

	byChunk, err := g.GetEntitiesByChunkIDs(ctx, []string{"c3", "missing"})
	require.NoError(t, err)
	require.Len(t, byChunk, 1)
	assert.Equal(t, "helper", byChunk[0].Name)

	stats, err := g.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Entities)
	assert.Equal(t, 2, stats.Relations)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 1, stats.EntitiesByKind[types.KindMethod])
}

func TestGraphStore_QueryEscapesLike(t *testing.T) {
	g := setupGraph(t)
	ctx := context.Background()

	require.NoError(t, g.InsertEntities(ctx, []types.Entity{
		{Name: "get_user", Kind: types.KindFunction, FilePath: "a.py", StartLine: 1},
		{Name: "getXuser", Kind: types.KindFunction, FilePath: "a.py", StartLine: 5},
	}))

	res, err := g.Query(ctx, GraphQuery{Name: "get_"})
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "get_user", res.Entities[0].Name)
}

func TestGraphStore_DeleteByFilePath(t *testing.T) {
	g := setupGraph(t)
	ctx := context.Background()

	entities := []types.Entity{
		{Name: "A", Kind: types.KindFunction, FilePath: "a.go", StartLine: 1},
		{Name: "B", Kind: types.KindFunction, FilePath: "b.go", StartLine: 1},
	}
	require.NoError(t, g.InsertEntities(ctx, entities))
	require.NoError(t, g.InsertRelations(ctx, []types.Relation{
		{SourceID: entities[0].ID, TargetName: "fmt", Kind: types.RelationImports, FilePath: "a.go"},
	}))

	require.NoError(t, g.DeleteByFilePath(ctx, "a.go"))

	stats, err := g.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entities)
	assert.Equal(t, 0, stats.Relations)

	res, err := g.Query(ctx, GraphQuery{FilePath: "a.go"})
	require.NoError(t, err)
	assert.Empty(t, res.Entities)
}

func TestGraphStore_RejectsUnknownKind(t *testing.T) {
	g := setupGraph(t)
	err := g.InsertEntities(context.Background(), []types.Entity{{Name: "x", Kind: "widget", FilePath: "x.go"}})
	assert.ErrorIs(t, err, types.ErrInvalidKind)
}
