package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dshills/codeindex/internal/embedder"
	"github.com/dshills/codeindex/internal/storage"
	"github.com/dshills/codeindex/pkg/types"
)

// SearchMode selects which indexes a search consults
type SearchMode string

const (
	SearchHybrid  SearchMode = "hybrid"
	SearchVector  SearchMode = "vector"
	SearchKeyword SearchMode = "keyword"
)

// ErrEmptyQuery is returned for a blank search query
var ErrEmptyQuery = errors.New("query cannot be empty")

// SearchRequest is one search over the index
type SearchRequest struct {
	Query    string
	Limit    int
	Mode     SearchMode
	FilePath string // exact match, vector results only
	Language string // exact match, vector results only
}

// SearchResults lists hits per source. The two lists are not merged or
// re-ranked against each other.
type SearchResults struct {
	Text   []storage.TextResult
	Vector []storage.VectorResult
	// VectorError explains a missing vector list in hybrid mode
	VectorError string
}

// Search runs the full-text and vector queries the mode asks for. In hybrid
// mode a failing query embedding degrades to text results only.
func (ws *Workspace) Search(ctx context.Context, req SearchRequest) (*SearchResults, error) {
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.Mode == "" {
		req.Mode = SearchHybrid
	}

	res := &SearchResults{}
	if req.Mode == SearchHybrid || req.Mode == SearchKeyword {
		hits, err := ws.Metadata.SearchFTS(ctx, req.Query, req.Limit)
		if err != nil {
			return nil, fmt.Errorf("full-text search: %w", err)
		}
		res.Text = hits
	}

	if req.Mode == SearchHybrid || req.Mode == SearchVector {
		hits, err := ws.vectorSearch(ctx, req)
		switch {
		case err == nil:
			res.Vector = hits
		case req.Mode == SearchVector:
			return nil, err
		default:
			ws.logger.Warn("vector search unavailable", slog.String("error", err.Error()))
			res.VectorError = err.Error()
		}
	}
	return res, nil
}

func (ws *Workspace) vectorSearch(ctx context.Context, req SearchRequest) ([]storage.VectorResult, error) {
	vecs, err := ws.Embedder.GenerateEmbedding(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embed query: %w", embedder.ErrProviderFailed)
	}

	var filter *storage.VectorFilter
	if req.FilePath != "" || req.Language != "" {
		filter = &storage.VectorFilter{FilePath: req.FilePath, Language: req.Language}
	}
	hits, err := ws.Vectors.Query(ctx, vecs[0], req.Limit, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return hits, nil
}

// Status summarizes the stored index and the current run
type Status struct {
	Root       string
	Index      storage.IndexStatus
	Progress   types.IndexingProgress
	Running    bool
	Checkpoint *types.BuildCheckpoint // persisted and resumable, else nil
	Vectors    int
	Graph      *storage.GraphStats // nil when graph indexing is disabled
	Embedding  embedder.ClientStats
	Branch     string
}

// Status collects the stored index status, live progress and store counts
func (ws *Workspace) Status(ctx context.Context) (*Status, error) {
	st, err := ws.Metadata.GetIndexStatus(ctx)
	if err != nil {
		return nil, err
	}

	out := &Status{
		Root:      ws.Root,
		Index:     *st,
		Progress:  ws.Manager.GetProgress(),
		Running:   ws.Manager.Running(),
		Vectors:   ws.Vectors.Count(),
		Embedding: ws.Embedder.Stats(),
		Branch:    ws.currentBranch(ctx),
	}

	cp, err := ws.Metadata.GetCheckpoint(ctx)
	switch {
	case err == nil && cp.IsResumable():
		out.Checkpoint = cp
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	if ws.Graph != nil {
		if out.Graph, err = ws.Graph.GetStats(ctx); err != nil {
			return nil, err
		}
	}
	return out, nil
}
