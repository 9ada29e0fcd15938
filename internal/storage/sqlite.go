package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/codeindex/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrEmptyQuery is returned when a full-text query has no searchable tokens
	ErrEmptyQuery = errors.New("empty search query")
)

// maxBindVars keeps IN (...) lists under SQLite's host parameter limit
const maxBindVars = 500

// SQLiteMetadataStore implements MetadataStore using SQLite
type SQLiteMetadataStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteMetadataStore opens (or creates) the database at dbPath and applies migrations.
// Use ":memory:" for an ephemeral store.
func NewSQLiteMetadataStore(dbPath string) (*SQLiteMetadataStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteMetadataStore{db: db, now: time.Now}, nil
}

// DB exposes the handle so the graph store can share it
func (s *SQLiteMetadataStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteMetadataStore) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn inside a transaction, rolling back on error
func withTx(ctx context.Context, db *sql.DB, fn func(q querier) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// inBatches calls fn with successive slices of at most maxBindVars items
func inBatches(items []string, fn func(batch []string) error) error {
	for start := 0; start < len(items); start += maxBindVars {
		end := start + maxBindVars
		if end > len(items) {
			end = len(items)
		}
		if err := fn(items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func toArgs(items []string) []interface{} {
	args := make([]interface{}, len(items))
	for i, it := range items {
		args[i] = it
	}
	return args
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// File operations

// InsertFileMeta inserts or replaces file metadata
func (s *SQLiteMetadataStore) InsertFileMeta(ctx context.Context, files []types.FileMetadata) error {
	if len(files) == 0 {
		return nil
	}
	now := unixNano(s.now())
	return withTx(ctx, s.db, func(q querier) error {
		stmt := `
			INSERT INTO files (path, content_hash, last_modified, size_bytes, language, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				content_hash = excluded.content_hash,
				last_modified = excluded.last_modified,
				size_bytes = excluded.size_bytes,
				language = excluded.language,
				indexed_at = excluded.indexed_at
		`
		for i := range files {
			f := &files[i]
			if err := f.Validate(); err != nil {
				return fmt.Errorf("invalid file metadata %q: %w", f.Path, err)
			}
			if _, err := q.ExecContext(ctx, stmt,
				f.Path, f.ContentHash, unixNano(f.LastModified), f.Size, f.Language, now); err != nil {
				return fmt.Errorf("failed to insert file %s: %w", f.Path, err)
			}
		}
		return nil
	})
}

// GetFileMeta returns metadata for a path or ErrNotFound
func (s *SQLiteMetadataStore) GetFileMeta(ctx context.Context, path string) (*types.FileMetadata, error) {
	query := `SELECT path, content_hash, last_modified, size_bytes, language FROM files WHERE path = ?`
	var f types.FileMetadata
	var modified int64
	err := s.db.QueryRowContext(ctx, query, path).Scan(&f.Path, &f.ContentHash, &modified, &f.Size, &f.Language)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", path, err)
	}
	f.LastModified = fromUnixNano(modified)
	return &f, nil
}

// GetAllFileMeta returns every tracked file ordered by path
func (s *SQLiteMetadataStore) GetAllFileMeta(ctx context.Context) ([]types.FileMetadata, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, content_hash, last_modified, size_bytes, language FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []types.FileMetadata
	for rows.Next() {
		var f types.FileMetadata
		var modified int64
		if err := rows.Scan(&f.Path, &f.ContentHash, &modified, &f.Size, &f.Language); err != nil {
			return nil, err
		}
		f.LastModified = fromUnixNano(modified)
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeleteFileMeta removes metadata for the given paths. Missing paths are ignored.
func (s *SQLiteMetadataStore) DeleteFileMeta(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return withTx(ctx, s.db, func(q querier) error {
		return inBatches(paths, func(batch []string) error {
			query := fmt.Sprintf("DELETE FROM files WHERE path IN (%s)", placeholders(len(batch)))
			if _, err := q.ExecContext(ctx, query, toArgs(batch)...); err != nil {
				return fmt.Errorf("failed to delete files: %w", err)
			}
			return nil
		})
	})
}

// Chunk operations

const chunkColumns = `id, file_path, content, content_hash, token_count, start_line, end_line, language, kind, symbol`

func scanChunk(scan func(dest ...interface{}) error, extra ...interface{}) (types.Chunk, error) {
	var c types.Chunk
	var kind string
	dest := []interface{}{&c.ID, &c.FilePath, &c.Content, &c.ContentHash, &c.TokenCount,
		&c.StartLine, &c.EndLine, &c.Language, &kind, &c.Symbol}
	dest = append(dest, extra...)
	if err := scan(dest...); err != nil {
		return c, err
	}
	c.Kind = types.ChunkKind(kind)
	return c, nil
}

func collectChunks(rows *sql.Rows) ([]types.Chunk, error) {
	var chunks []types.Chunk
	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// InsertChunks inserts or replaces chunks in a single transaction
func (s *SQLiteMetadataStore) InsertChunks(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	now := unixNano(s.now())
	return withTx(ctx, s.db, func(q querier) error {
		stmt := `
			INSERT INTO chunks (` + chunkColumns + `, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				file_path = excluded.file_path,
				content = excluded.content,
				content_hash = excluded.content_hash,
				token_count = excluded.token_count,
				start_line = excluded.start_line,
				end_line = excluded.end_line,
				language = excluded.language,
				kind = excluded.kind,
				symbol = excluded.symbol,
				indexed_at = excluded.indexed_at
		`
		for i := range chunks {
			c := &chunks[i]
			if err := c.Validate(); err != nil {
				return fmt.Errorf("invalid chunk %q: %w", c.ID, err)
			}
			if _, err := q.ExecContext(ctx, stmt,
				c.ID, c.FilePath, c.Content, c.ContentHash, c.TokenCount,
				c.StartLine, c.EndLine, c.Language, string(c.Kind), c.Symbol, now); err != nil {
				return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// GetChunksByFilePath returns a file's chunks ordered by position
func (s *SQLiteMetadataStore) GetChunksByFilePath(ctx context.Context, path string) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE file_path = ? ORDER BY start_line, end_line`, path)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks for %s: %w", path, err)
	}
	defer func() { _ = rows.Close() }()
	return collectChunks(rows)
}

// DeleteChunksByFilePath removes every chunk owned by the given paths
func (s *SQLiteMetadataStore) DeleteChunksByFilePath(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return withTx(ctx, s.db, func(q querier) error {
		return inBatches(paths, func(batch []string) error {
			query := fmt.Sprintf("DELETE FROM chunks WHERE file_path IN (%s)", placeholders(len(batch)))
			if _, err := q.ExecContext(ctx, query, toArgs(batch)...); err != nil {
				return fmt.Errorf("failed to delete chunks: %w", err)
			}
			return nil
		})
	})
}

// SearchFTS performs BM25 full-text search over chunk content, symbol and path
func (s *SQLiteMetadataStore) SearchFTS(ctx context.Context, query string, limit int) ([]TextResult, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 10
	}

	sqlQuery := `
		SELECT ` + prefixed("c", chunkColumns) + `, bm25(chunks_fts) AS score
		FROM chunks_fts
		INNER JOIN chunks c ON chunks_fts.rowid = c.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, sqlQuery, sanitized, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []TextResult
	for rows.Next() {
		var score float64
		c, err := scanChunk(rows.Scan, &score)
		if err != nil {
			return nil, err
		}
		results = append(results, TextResult{Chunk: c, Score: normalizeBM25(score)})
	}
	return results, rows.Err()
}

// GetRecentChunks returns the most recently indexed chunks
func (s *SQLiteMetadataStore) GetRecentChunks(ctx context.Context, limit int) ([]types.Chunk, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks ORDER BY indexed_at DESC, file_path, start_line LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectChunks(rows)
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// Embedding cache

// GetEmbeddingCache returns the cached vector for key or ErrNotFound
func (s *SQLiteMetadataStore) GetEmbeddingCache(ctx context.Context, key string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT vector FROM embedding_cache WHERE cache_key = ?`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding cache: %w", err)
	}
	return deserializeVector(blob), nil
}

// SetEmbeddingCache stores vector under key, replacing any previous value
func (s *SQLiteMetadataStore) SetEmbeddingCache(ctx context.Context, key string, vector []float32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embedding_cache (cache_key, vector, dimension, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET vector = excluded.vector, dimension = excluded.dimension
	`, key, serializeVector(vector), len(vector), unixNano(s.now()))
	if err != nil {
		return fmt.Errorf("failed to write embedding cache: %w", err)
	}
	return nil
}

// Index status

// GetIndexStatus returns the persisted status. A fresh store reports idle.
func (s *SQLiteMetadataStore) GetIndexStatus(ctx context.Context) (*IndexStatus, error) {
	var st IndexStatus
	var status string
	var lastIndexed, updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT status, total_files, total_chunks, embedded_chunks, failed_chunks,
		       branch, model, last_indexed_at, updated_at
		FROM index_status WHERE id = 1
	`).Scan(&status, &st.TotalFiles, &st.TotalChunks, &st.EmbeddedChunks, &st.FailedChunks,
		&st.Branch, &st.Model, &lastIndexed, &updated)
	if err == sql.ErrNoRows {
		return &IndexStatus{Status: types.StatusIdle}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index status: %w", err)
	}
	st.Status = types.Status(status)
	st.LastIndexedAt = fromUnixNano(lastIndexed)
	st.UpdatedAt = fromUnixNano(updated)
	return &st, nil
}

// UpdateIndexStatus applies the non-nil fields of patch
func (s *SQLiteMetadataStore) UpdateIndexStatus(ctx context.Context, patch IndexStatusPatch) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{unixNano(s.now())}

	add := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.TotalFiles != nil {
		add("total_files", *patch.TotalFiles)
	}
	if patch.TotalChunks != nil {
		add("total_chunks", *patch.TotalChunks)
	}
	if patch.EmbeddedChunks != nil {
		add("embedded_chunks", *patch.EmbeddedChunks)
	}
	if patch.FailedChunks != nil {
		add("failed_chunks", *patch.FailedChunks)
	}
	if patch.Branch != nil {
		add("branch", *patch.Branch)
	}
	if patch.Model != nil {
		add("model", *patch.Model)
	}
	if patch.LastIndexedAt != nil {
		add("last_indexed_at", unixNano(*patch.LastIndexedAt))
	}

	return withTx(ctx, s.db, func(q querier) error {
		if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO index_status (id) VALUES (1)`); err != nil {
			return fmt.Errorf("failed to init index status: %w", err)
		}
		query := "UPDATE index_status SET " + strings.Join(sets, ", ") + " WHERE id = 1"
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update index status: %w", err)
		}
		return nil
	})
}

// Checkpoint

// GetCheckpoint returns the stored checkpoint or ErrNotFound
func (s *SQLiteMetadataStore) GetCheckpoint(ctx context.Context) (*types.BuildCheckpoint, error) {
	var cp types.BuildCheckpoint
	var phase, pending string
	var streaming int
	var updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, phase, last_processed_path, pending_chunk_ids, streaming, model, updated_at
		FROM checkpoint WHERE id = 1
	`).Scan(&cp.RunID, &phase, &cp.LastProcessedPath, &pending, &streaming, &cp.Model, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if err := json.Unmarshal([]byte(pending), &cp.PendingChunkIDs); err != nil {
		return nil, fmt.Errorf("failed to decode pending chunk ids: %w", err)
	}
	cp.Phase = types.Status(phase)
	cp.Streaming = streaming != 0
	cp.UpdatedAt = fromUnixNano(updated)
	return &cp, nil
}

// SaveCheckpoint overwrites the stored checkpoint
func (s *SQLiteMetadataStore) SaveCheckpoint(ctx context.Context, cp *types.BuildCheckpoint) error {
	if cp == nil {
		return errors.New("nil checkpoint")
	}
	pending := cp.PendingChunkIDs
	if pending == nil {
		pending = []string{}
	}
	encoded, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to encode pending chunk ids: %w", err)
	}
	streaming := 0
	if cp.Streaming {
		streaming = 1
	}
	updated := cp.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoint (id, run_id, phase, last_processed_path, pending_chunk_ids, streaming, model, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_id = excluded.run_id,
			phase = excluded.phase,
			last_processed_path = excluded.last_processed_path,
			pending_chunk_ids = excluded.pending_chunk_ids,
			streaming = excluded.streaming,
			model = excluded.model,
			updated_at = excluded.updated_at
	`, cp.RunID, string(cp.Phase), cp.LastProcessedPath, string(encoded), streaming, cp.Model, unixNano(updated))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// ClearCheckpoint removes the stored checkpoint, if any
func (s *SQLiteMetadataStore) ClearCheckpoint(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoint WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}
