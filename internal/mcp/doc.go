// Package mcp implements the Model Context Protocol (MCP) server for codeindex.
//
// The server exposes one workspace to AI coding assistants through six tools:
//   - index_codebase: Build the index, optionally streaming or in the background
//   - index_status: Stored index summary, live progress and resumable checkpoint
//   - update_index: Incremental update for a list of changed paths
//   - check_branch: Detect a git branch switch and update the index for it
//   - search_code: Keyword and vector search over indexed chunks
//   - control_indexing: Pause, resume or cancel the running build
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is typically started via the serve command:
//
//	codeindex serve --root /path/to/project
//
// # Tool: index_codebase
//
//	Request:
//	{
//	  "name": "index_codebase",
//	  "arguments": {"streaming": true, "background": true}
//	}
//
//	Response:
//	{"started": true, "streaming": true, "message": "..."}
//
// A foreground build returns file and chunk counts once it is done. A build
// interrupted by a crash or a cancel is resumed from its checkpoint.
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {"query": "token validation", "limit": 5, "search_mode": "hybrid"}
//	}
//
// Keyword hits come from the full-text index and vector hits from the
// embedding index. They are listed separately and not merged. In hybrid mode
// a failing query embedding is reported as vector_error while keyword hits
// are still returned.
//
// # Error Codes
//
//   - -32602: Invalid parameters
//   - -32603: Internal error
//   - -32002: Indexing already in progress
//   - -32003: Project not indexed
//   - -32004: Empty query
//   - -32005: No build running
package mcp
