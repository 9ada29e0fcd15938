package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dshills/codeindex/pkg/types"
)

// SQLiteGraphStore implements GraphStore on the metadata database.
// The handle is shared; the metadata store owns and closes it.
type SQLiteGraphStore struct {
	db *sql.DB
}

var _ GraphStore = (*SQLiteGraphStore)(nil)

// NewSQLiteGraphStore creates a graph store on an open database
func NewSQLiteGraphStore(db *sql.DB) *SQLiteGraphStore {
	return &SQLiteGraphStore{db: db}
}

// Initialize makes sure the graph tables exist
func (g *SQLiteGraphStore) Initialize(ctx context.Context) error {
	if err := ApplyMigrations(ctx, g.db); err != nil {
		return fmt.Errorf("failed to initialize graph store: %w", err)
	}
	return nil
}

// Close is a no-op; the owning metadata store closes the handle
func (g *SQLiteGraphStore) Close() error {
	return nil
}

const entityColumns = `id, name, kind, file_path, chunk_id, language, signature, start_line, end_line`

func scanEntity(scan func(dest ...interface{}) error) (types.Entity, error) {
	var e types.Entity
	var kind string
	err := scan(&e.ID, &e.Name, &kind, &e.FilePath, &e.ChunkID, &e.Language, &e.Signature, &e.StartLine, &e.EndLine)
	e.Kind = types.SymbolKind(kind)
	return e, err
}

func collectEntities(rows *sql.Rows) ([]types.Entity, error) {
	var entities []types.Entity
	for rows.Next() {
		e, err := scanEntity(rows.Scan)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// InsertEntities inserts or replaces entities
func (g *SQLiteGraphStore) InsertEntities(ctx context.Context, entities []types.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	return withTx(ctx, g.db, func(q querier) error {
		stmt := `INSERT OR REPLACE INTO entities (` + entityColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		for i := range entities {
			e := &entities[i]
			if err := e.ValidateKind(); err != nil {
				return err
			}
			if e.ID == "" {
				e.ID = types.EntityID(e.FilePath, e.Kind, e.Name, e.StartLine)
			}
			if _, err := q.ExecContext(ctx, stmt, e.ID, e.Name, string(e.Kind), e.FilePath,
				e.ChunkID, e.Language, e.Signature, e.StartLine, e.EndLine); err != nil {
				return fmt.Errorf("failed to insert entity %s: %w", e.Name, err)
			}
		}
		return nil
	})
}

// InsertRelations inserts relations, ignoring exact duplicates
func (g *SQLiteGraphStore) InsertRelations(ctx context.Context, relations []types.Relation) error {
	if len(relations) == 0 {
		return nil
	}
	return withTx(ctx, g.db, func(q querier) error {
		stmt := `INSERT OR IGNORE INTO relations (id, source_id, target_id, target_name, kind, file_path)
			VALUES (?, ?, ?, ?, ?, ?)`
		for _, r := range relations {
			if _, err := q.ExecContext(ctx, stmt, types.RelationID(r), r.SourceID, r.TargetID,
				r.TargetName, string(r.Kind), r.FilePath); err != nil {
				return fmt.Errorf("failed to insert relation: %w", err)
			}
		}
		return nil
	})
}

// GetEntitiesByChunkIDs returns the entities anchored in the given chunks
func (g *SQLiteGraphStore) GetEntitiesByChunkIDs(ctx context.Context, ids []string) ([]types.Entity, error) {
	var out []types.Entity
	err := inBatches(ids, func(batch []string) error {
		query := fmt.Sprintf(`SELECT %s FROM entities WHERE chunk_id IN (%s) ORDER BY file_path, start_line`,
			entityColumns, placeholders(len(batch)))
		rows, err := g.db.QueryContext(ctx, query, toArgs(batch)...)
		if err != nil {
			return fmt.Errorf("failed to query entities: %w", err)
		}
		defer func() { _ = rows.Close() }()
		entities, err := collectEntities(rows)
		if err != nil {
			return err
		}
		out = append(out, entities...)
		return nil
	})
	return out, err
}

// Query returns entities matching q and optionally their outgoing relations
func (g *SQLiteGraphStore) Query(ctx context.Context, q GraphQuery) (*GraphResult, error) {
	var conditions []string
	var args []interface{}
	if q.Name != "" {
		conditions = append(conditions, "name LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(q.Name)+"%")
	}
	if q.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if q.FilePath != "" {
		conditions = append(conditions, "file_path = ?")
		args = append(args, q.FilePath)
	}

	query := `SELECT ` + entityColumns + ` FROM entities`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY file_path, start_line"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query graph: %w", err)
	}
	entities, err := collectEntities(rows)
	_ = rows.Close()
	if err != nil {
		return nil, err
	}

	result := &GraphResult{Entities: entities}
	if !q.IncludeRelations || len(entities) == 0 {
		return result, nil
	}

	ids := make([]string, len(entities))
	for i := range entities {
		ids[i] = entities[i].ID
	}
	err = inBatches(ids, func(batch []string) error {
		rq := fmt.Sprintf(`SELECT source_id, target_id, target_name, kind, file_path FROM relations
			WHERE source_id IN (%s) ORDER BY source_id, kind, target_name`, placeholders(len(batch)))
		rows, err := g.db.QueryContext(ctx, rq, toArgs(batch)...)
		if err != nil {
			return fmt.Errorf("failed to query relations: %w", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var r types.Relation
			var kind string
			if err := rows.Scan(&r.SourceID, &r.TargetID, &r.TargetName, &kind, &r.FilePath); err != nil {
				return err
			}
			r.Kind = types.RelationKind(kind)
			result.Relations = append(result.Relations, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteByFilePath removes every entity and relation extracted from path
func (g *SQLiteGraphStore) DeleteByFilePath(ctx context.Context, path string) error {
	return withTx(ctx, g.db, func(q querier) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM relations WHERE file_path = ?`, path); err != nil {
			return fmt.Errorf("failed to delete relations for %s: %w", path, err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM entities WHERE file_path = ?`, path); err != nil {
			return fmt.Errorf("failed to delete entities for %s: %w", path, err)
		}
		return nil
	})
}

// GetStats counts entities, relations and files in the graph
func (g *SQLiteGraphStore) GetStats(ctx context.Context) (*GraphStats, error) {
	stats := &GraphStats{EntitiesByKind: make(map[types.SymbolKind]int)}
	if err := g.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT file_path) FROM entities`).Scan(&stats.Entities, &stats.Files); err != nil {
		return nil, fmt.Errorf("failed to count entities: %w", err)
	}
	if err := g.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relations`).Scan(&stats.Relations); err != nil {
		return nil, fmt.Errorf("failed to count relations: %w", err)
	}

	rows, err := g.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM entities GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count entity kinds: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		stats.EntitiesByKind[types.SymbolKind(kind)] = n
	}
	return stats, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
