package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/codeindex/internal/indexer"
	"github.com/dshills/codeindex/internal/workspace"
	"github.com/dshills/codeindex/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Project not indexed
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeNotRunning         = -32005 // No build to pause, resume or cancel
)

// handleIndexCodebase handles the index_codebase tool invocation
func (s *Server) handleIndexCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	streaming := getBoolDefault(args, "streaming", false)
	background := getBoolDefault(args, "background", false)

	if s.ws.Manager.Running() {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}

	if background {
		s.startBuild(streaming)
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"started":   true,
			"streaming": streaming,
			"message":   "Build started. Use index_status to follow progress.",
		})), nil
	}

	err := s.ws.Index(ctx, streaming, nil)
	switch {
	case errors.Is(err, indexer.ErrBuildInProgress):
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	case errors.Is(err, indexer.ErrCancelled):
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"indexed":   false,
			"cancelled": true,
		})), nil
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	p := s.ws.Manager.GetProgress()
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"indexed":         true,
		"files_total":     p.TotalFiles,
		"files_skipped":   p.SkippedFiles,
		"chunks_total":    p.TotalChunks,
		"chunks_embedded": p.EmbeddedChunks,
		"chunks_failed":   p.FailedChunks,
		"duration_ms":     time.Since(p.StartTime).Milliseconds(),
	})), nil
}

// handleIndexStatus handles the index_status tool invocation
func (s *Server) handleIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.ws.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"root":    st.Root,
		"indexed": !st.Index.LastIndexedAt.IsZero(),
		"running": st.Running,
		"branch":  st.Branch,
		"index": map[string]interface{}{
			"status":          string(st.Index.Status),
			"files":           st.Index.TotalFiles,
			"chunks":          st.Index.TotalChunks,
			"embedded_chunks": st.Index.EmbeddedChunks,
			"failed_chunks":   st.Index.FailedChunks,
			"vectors":         st.Vectors,
			"model":           st.Index.Model,
			"branch":          st.Index.Branch,
		},
		"progress": progressMap(st.Progress),
		"embedding": map[string]interface{}{
			"calls":      st.Embedding.Calls,
			"retries":    st.Embedding.Retries,
			"failures":   st.Embedding.Failures,
			"cache_hits": st.Embedding.CacheHits + st.Embedding.StoreHits,
		},
	}
	if !st.Index.LastIndexedAt.IsZero() {
		response["last_indexed_at"] = st.Index.LastIndexedAt.Format(time.RFC3339)
	}
	if st.Checkpoint != nil {
		response["checkpoint"] = map[string]interface{}{
			"run_id":              st.Checkpoint.RunID,
			"phase":               string(st.Checkpoint.Phase),
			"last_processed_path": st.Checkpoint.LastProcessedPath,
			"pending_chunks":      len(st.Checkpoint.PendingChunkIDs),
			"streaming":           st.Checkpoint.Streaming,
			"updated_at":          st.Checkpoint.UpdatedAt.Format(time.RFC3339),
		}
	}
	if st.Graph != nil {
		response["graph"] = map[string]interface{}{
			"entities":  st.Graph.Entities,
			"relations": st.Graph.Relations,
			"files":     st.Graph.Files,
		}
	}
	if err := s.lastBuildError(); err != nil {
		response["last_build_error"] = err.Error()
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

func progressMap(p types.IndexingProgress) map[string]interface{} {
	m := map[string]interface{}{
		"status":           string(p.Status),
		"phase":            p.Phase,
		"phase_progress":   round1(p.PhaseProgress),
		"overall_progress": round1(p.OverallProgress),
		"scanned_files":    p.ScannedFiles,
		"total_files":      p.TotalFiles,
		"chunked_files":    p.ChunkedFiles,
		"embedded_chunks":  p.EmbeddedChunks,
		"failed_chunks":    p.FailedChunks,
		"total_chunks":     p.TotalChunks,
		"stored_chunks":    p.StoredChunks,
	}
	if p.Error != "" {
		m["error"] = p.Error
	}
	return m
}

// handleUpdateIndex handles the update_index tool invocation
func (s *Server) handleUpdateIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths, ok := getStringSlice(request.GetArguments(), "paths")
	if !ok || len(paths) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "paths parameter is required", map[string]interface{}{
			"param":  "paths",
			"reason": "missing, empty or not an array of strings",
		})
	}

	cs, err := s.ws.Update(ctx, paths)
	if errors.Is(err, indexer.ErrBuildInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "update failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(changeSetMap(cs))), nil
}

func changeSetMap(cs types.ChangeSet) map[string]interface{} {
	return map[string]interface{}{
		"added":    nonNil(cs.Added),
		"modified": nonNil(cs.Modified),
		"deleted":  nonNil(cs.Deleted),
	}
}

// handleCheckBranch handles the check_branch tool invocation
func (s *Server) handleCheckBranch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.ws.Branch.IsRepository(ctx) {
		return nil, newMCPError(ErrorCodeInvalidParams, "project is not a git repository", map[string]interface{}{
			"root": s.ws.Root,
		})
	}

	res := s.ws.Branch.CheckBranchChange(ctx)
	response := map[string]interface{}{
		"changed":         res.Changed,
		"previous_branch": res.PreviousBranch,
		"current_branch":  res.CurrentBranch,
		"uncommitted":     s.ws.Branch.HasUncommittedChanges(ctx),
	}
	if res.Changed {
		if res.ChangedFiles == nil {
			response["full_rebuild"] = true
		} else {
			response["changed_files"] = res.ChangedFiles
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	query := getStringDefault(args, "query", "")
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode := workspace.SearchMode(getStringDefault(args, "search_mode", string(workspace.SearchHybrid)))
	if mode != workspace.SearchHybrid && mode != workspace.SearchVector && mode != workspace.SearchKeyword {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   mode,
			"allowed": []string{"hybrid", "vector", "keyword"},
		})
	}

	st, err := s.ws.Metadata.GetIndexStatus(ctx)
	if err == nil && st.LastIndexedAt.IsZero() {
		return nil, newMCPError(ErrorCodeNotIndexed, "project not indexed", map[string]interface{}{
			"hint": "run index_codebase first",
		})
	}

	res, err := s.ws.Search(ctx, workspace.SearchRequest{
		Query:    query,
		Limit:    limit,
		Mode:     mode,
		FilePath: getStringDefault(args, "file_path", ""),
		Language: getStringDefault(args, "language", ""),
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	text := make([]map[string]interface{}, 0, len(res.Text))
	for _, hit := range res.Text {
		text = append(text, map[string]interface{}{
			"chunk_id":   hit.Chunk.ID,
			"file_path":  hit.Chunk.FilePath,
			"start_line": hit.Chunk.StartLine,
			"end_line":   hit.Chunk.EndLine,
			"symbol":     hit.Chunk.Symbol,
			"score":      round3(hit.Score),
			"content":    hit.Chunk.Content,
		})
	}
	vector := make([]map[string]interface{}, 0, len(res.Vector))
	for _, hit := range res.Vector {
		vector = append(vector, map[string]interface{}{
			"chunk_id":   hit.ChunkID,
			"file_path":  hit.FilePath,
			"start_line": hit.StartLine,
			"end_line":   hit.EndLine,
			"similarity": round3(float64(hit.Similarity)),
			"content":    hit.Content,
		})
	}

	response := map[string]interface{}{
		"query":         query,
		"search_mode":   string(mode),
		"keyword_hits":  text,
		"vector_hits":   vector,
		"keyword_count": len(text),
		"vector_count":  len(vector),
	}
	if res.VectorError != "" {
		response["vector_error"] = res.VectorError
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleControlIndexing handles the control_indexing tool invocation
func (s *Server) handleControlIndexing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action := getStringDefault(request.GetArguments(), "action", "")
	if action != "pause" && action != "resume" && action != "cancel" {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid action", map[string]interface{}{
			"param":   "action",
			"value":   action,
			"allowed": []string{"pause", "resume", "cancel"},
		})
	}
	if !s.ws.Manager.Running() {
		return nil, newMCPError(ErrorCodeNotRunning, "no build is running", nil)
	}

	m := s.ws.Manager
	switch action {
	case "pause":
		if err := m.Pause(); err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "checkpoint save failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	case "resume":
		m.Resume()
	case "cancel":
		m.Cancel()
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"action": action,
		"status": string(m.GetProgress().Status),
	})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array; JSON decoding yields []interface{}
func getStringSlice(args map[string]interface{}, key string) ([]string, bool) {
	switch v := args[key].(type) {
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
