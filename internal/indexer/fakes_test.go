package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dshills/codeindex/internal/storage"
	"github.com/dshills/codeindex/pkg/types"
)

// callLog records store calls in order across all fakes
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.all() {
		if c == call {
			n++
		}
	}
	return n
}

// index returns the position of the first call, or -1
func (l *callLog) index(call string) int {
	for i, c := range l.all() {
		if c == call {
			return i
		}
	}
	return -1
}

// fakeMetadata is an in-memory MetadataStore
type fakeMetadata struct {
	log *callLog

	mu          sync.Mutex
	files       map[string]types.FileMetadata
	chunks      map[string][]types.Chunk
	checkpoint  *types.BuildCheckpoint
	saves       int
	status      storage.IndexStatus
	failInserts error
}

var _ storage.MetadataStore = (*fakeMetadata)(nil)

func newFakeMetadata(log *callLog) *fakeMetadata {
	return &fakeMetadata{
		log:    log,
		files:  make(map[string]types.FileMetadata),
		chunks: make(map[string][]types.Chunk),
		status: storage.IndexStatus{Status: types.StatusIdle},
	}
}

func (f *fakeMetadata) InsertFileMeta(_ context.Context, files []types.FileMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, file := range files {
		f.log.add("InsertFileMeta %s", file.Path)
		f.files[file.Path] = file
	}
	return nil
}

func (f *fakeMetadata) GetFileMeta(_ context.Context, path string) (*types.FileMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &file, nil
}

func (f *fakeMetadata) GetAllFileMeta(context.Context) ([]types.FileMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.FileMetadata, 0, len(f.files))
	for _, file := range f.files {
		out = append(out, file)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *fakeMetadata) DeleteFileMeta(_ context.Context, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log.add("DeleteFileMeta %s", strings.Join(paths, ","))
	for _, p := range paths {
		delete(f.files, p)
	}
	return nil
}

func (f *fakeMetadata) InsertChunks(_ context.Context, chunks []types.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInserts != nil {
		return f.failInserts
	}
	for _, c := range chunks {
		f.chunks[c.FilePath] = append(f.chunks[c.FilePath], c)
	}
	if len(chunks) > 0 {
		f.log.add("InsertChunks %s", chunks[0].FilePath)
	}
	return nil
}

func (f *fakeMetadata) GetChunksByFilePath(_ context.Context, path string) ([]types.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Chunk(nil), f.chunks[path]...), nil
}

func (f *fakeMetadata) DeleteChunksByFilePath(_ context.Context, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log.add("DeleteChunksByFilePath %s", strings.Join(paths, ","))
	for _, p := range paths {
		delete(f.chunks, p)
	}
	return nil
}

func (f *fakeMetadata) SearchFTS(context.Context, string, int) ([]storage.TextResult, error) {
	return nil, nil
}

func (f *fakeMetadata) GetRecentChunks(context.Context, int) ([]types.Chunk, error) {
	return nil, nil
}

func (f *fakeMetadata) GetEmbeddingCache(context.Context, string) ([]float32, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeMetadata) SetEmbeddingCache(context.Context, string, []float32) error {
	return nil
}

func (f *fakeMetadata) GetCheckpoint(context.Context) (*types.BuildCheckpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkpoint == nil {
		return nil, storage.ErrNotFound
	}
	return f.checkpoint.Clone(), nil
}

func (f *fakeMetadata) SaveCheckpoint(_ context.Context, cp *types.BuildCheckpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.checkpoint = cp.Clone()
	return nil
}

func (f *fakeMetadata) ClearCheckpoint(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoint = nil
	return nil
}

func (f *fakeMetadata) GetIndexStatus(context.Context) (*storage.IndexStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.status
	return &st, nil
}

func (f *fakeMetadata) UpdateIndexStatus(_ context.Context, patch storage.IndexStatusPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if patch.Status != nil {
		f.status.Status = *patch.Status
	}
	if patch.TotalFiles != nil {
		f.status.TotalFiles = *patch.TotalFiles
	}
	if patch.TotalChunks != nil {
		f.status.TotalChunks = *patch.TotalChunks
	}
	if patch.EmbeddedChunks != nil {
		f.status.EmbeddedChunks = *patch.EmbeddedChunks
	}
	if patch.FailedChunks != nil {
		f.status.FailedChunks = *patch.FailedChunks
	}
	if patch.Branch != nil {
		f.status.Branch = *patch.Branch
	}
	if patch.Model != nil {
		f.status.Model = *patch.Model
	}
	if patch.LastIndexedAt != nil {
		f.status.LastIndexedAt = *patch.LastIndexedAt
	}
	return nil
}

func (f *fakeMetadata) Close() error { return nil }

func (f *fakeMetadata) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func (f *fakeMetadata) storedCheckpoint() *types.BuildCheckpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkpoint.Clone()
}

// fakeVectors is an in-memory VectorStore
type fakeVectors struct {
	log *callLog

	mu          sync.Mutex
	docs        map[string]storage.VectorDocument
	optimized   int
	failDeletes error
}

var _ storage.VectorStore = (*fakeVectors)(nil)

func newFakeVectors(log *callLog) *fakeVectors {
	return &fakeVectors{log: log, docs: make(map[string]storage.VectorDocument)}
}

func (f *fakeVectors) Initialize(context.Context) error { return nil }

func (f *fakeVectors) InsertBatch(_ context.Context, docs []storage.VectorDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range docs {
		f.docs[d.Chunk.ID] = d
	}
	if len(docs) > 0 {
		f.log.add("InsertBatch %s", docs[0].Chunk.FilePath)
	}
	return nil
}

func (f *fakeVectors) Query(context.Context, []float32, int, *storage.VectorFilter) ([]storage.VectorResult, error) {
	return nil, nil
}

func (f *fakeVectors) DeleteByFilePath(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log.add("Vectors.DeleteByFilePath %s", path)
	for id, d := range f.docs {
		if d.Chunk.FilePath == path {
			delete(f.docs, id)
		}
	}
	return nil
}

func (f *fakeVectors) DeleteByChunkIDs(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log.add("Vectors.DeleteByChunkIDs %s", strings.Join(ids, ","))
	if f.failDeletes != nil {
		return f.failDeletes
	}
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func (f *fakeVectors) Optimize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.optimized++
	return nil
}

func (f *fakeVectors) Destroy(context.Context) error { return nil }

func (f *fakeVectors) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

// fakeGraph is an in-memory GraphStore
type fakeGraph struct {
	log *callLog

	mu        sync.Mutex
	entities  []types.Entity
	relations []types.Relation
}

var _ storage.GraphStore = (*fakeGraph)(nil)

func (f *fakeGraph) Initialize(context.Context) error { return nil }

func (f *fakeGraph) InsertEntities(_ context.Context, entities []types.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities = append(f.entities, entities...)
	if len(entities) > 0 {
		f.log.add("InsertEntities %s", entities[0].FilePath)
	}
	return nil
}

func (f *fakeGraph) InsertRelations(_ context.Context, relations []types.Relation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relations = append(f.relations, relations...)
	return nil
}

func (f *fakeGraph) GetEntitiesByChunkIDs(context.Context, []string) ([]types.Entity, error) {
	return nil, nil
}

func (f *fakeGraph) Query(context.Context, storage.GraphQuery) (*storage.GraphResult, error) {
	return &storage.GraphResult{}, nil
}

func (f *fakeGraph) DeleteByFilePath(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log.add("Graph.DeleteByFilePath %s", path)
	kept := f.entities[:0]
	for _, e := range f.entities {
		if e.FilePath != path {
			kept = append(kept, e)
		}
	}
	f.entities = kept
	return nil
}

func (f *fakeGraph) GetStats(context.Context) (*storage.GraphStats, error) {
	return &storage.GraphStats{}, nil
}

func (f *fakeGraph) Close() error { return nil }

// fakeEmbedder returns a fixed vector per text or fails every call
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{} // when set, each call waits for it to close
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	block, err := f.block, f.err
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errEmbedDown = errors.New("embedding endpoint unreachable")

// testEnv bundles a manager with its fakes
type testEnv struct {
	root     string
	log      *callLog
	meta     *fakeMetadata
	vectors  *fakeVectors
	graph    *fakeGraph
	embedder *fakeEmbedder
	mgr      *IndexManager
}

func newTestEnv(t *testing.T, files map[string]string, configure ...func(*ManagerConfig)) *testEnv {
	t.Helper()

	root := t.TempDir()
	for name, content := range files {
		writeTestFile(t, root, name, content)
	}

	log := &callLog{}
	env := &testEnv{
		root:     root,
		log:      log,
		meta:     newFakeMetadata(log),
		vectors:  newFakeVectors(log),
		graph:    &fakeGraph{log: log},
		embedder: &fakeEmbedder{},
	}

	cfg := ManagerConfig{
		Root:               root,
		Metadata:           env.meta,
		Vectors:            env.vectors,
		Graph:              env.graph,
		Embedder:           env.embedder,
		EnableGraph:        true,
		Model:              "test-model",
		CheckpointInterval: -1,
	}
	for _, fn := range configure {
		fn(&cfg)
	}

	mgr, err := NewIndexManager(cfg)
	require.NoError(t, err)
	env.mgr = mgr
	return env
}

func writeTestFile(t *testing.T, root, name, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func goSource(pkg string, funcs ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "package %s\n", pkg)
	for _, fn := range funcs {
		fmt.Fprintf(&b, "\n// %s does nothing useful.\nfunc %s() int {\n\treturn 1\n}\n", fn, fn)
	}
	return b.String()
}
