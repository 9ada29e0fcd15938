package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexCodebaseTool returns the tool definition for index_codebase
func indexCodebaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_codebase",
		Description: "Build the code index for the project: scan, chunk, embed and store every file. Resumes an interrupted build from its checkpoint.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"streaming": map[string]interface{}{
					"type":        "boolean",
					"description": "Process files in bounded batches with a checkpoint after each batch (large repositories)",
					"default":     false,
				},
				"background": map[string]interface{}{
					"type":        "boolean",
					"description": "Return immediately and let the build run; poll index_status for progress",
					"default":     false,
				},
			},
		},
	}
}

// indexStatusTool returns the tool definition for index_status
func indexStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_status",
		Description: "Report the stored index summary, live build progress and any resumable checkpoint",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// updateIndexTool returns the tool definition for update_index
func updateIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "update_index",
		Description: "Incrementally re-index changed files. Each path is classified as added, modified or deleted by comparing the disk with the index.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"paths": map[string]interface{}{
					"type":        "array",
					"description": "Paths relative to the project root",
					"items": map[string]interface{}{
						"type": "string",
					},
					"minItems": 1,
				},
			},
			Required: []string{"paths"},
		},
	}
}

// checkBranchTool returns the tool definition for check_branch
func checkBranchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "check_branch",
		Description: "Detect a git branch switch since the last check and update the index for the files that differ",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Search the indexed code with keywords (full-text) or natural language (vectors). Results are listed per index.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results per index (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "hybrid (both indexes), vector (semantic only) or keyword (full-text only)",
					"enum":        []string{"hybrid", "vector", "keyword"},
					"default":     "hybrid",
				},
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Restrict vector results to one file",
				},
				"language": map[string]interface{}{
					"type":        "string",
					"description": "Restrict vector results to one language, e.g. go or python",
				},
			},
			Required: []string{"query"},
		},
	}
}

// controlIndexingTool returns the tool definition for control_indexing
func controlIndexingTool() mcp.Tool {
	return mcp.Tool{
		Name:        "control_indexing",
		Description: "Pause, resume or cancel the running build. Pausing saves a checkpoint.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"action": map[string]interface{}{
					"type": "string",
					"enum": []string{"pause", "resume", "cancel"},
				},
			},
			Required: []string{"action"},
		},
	}
}
