package mcp

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/codeindex/internal/workspace"
)

const (
	// ServerName is the MCP server name
	ServerName = "codeindex"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server exposes one workspace over MCP
type Server struct {
	mcp    *server.MCPServer
	ws     *workspace.Workspace
	logger *slog.Logger

	// background builds started by index_codebase
	mu      sync.Mutex
	baseCtx context.Context
	builds  sync.WaitGroup
	lastErr error
}

// NewServer creates a new MCP server instance for ws
func NewServer(ws *workspace.Workspace, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp:     mcpServer,
		ws:      ws,
		logger:  logger.With(slog.String("component", "mcp")),
		baseCtx: context.Background(),
	}
	s.registerTools()
	return s
}

// Serve runs the MCP protocol on in/out until ctx is done or in is closed.
// Background builds are cancelled and awaited before it returns.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("serving MCP", slog.String("root", s.ws.Root))
	err := stdio.Listen(ctx, in, out)

	cancel()
	s.builds.Wait()
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexCodebaseTool(), s.handleIndexCodebase)
	s.mcp.AddTool(indexStatusTool(), s.handleIndexStatus)
	s.mcp.AddTool(updateIndexTool(), s.handleUpdateIndex)
	s.mcp.AddTool(checkBranchTool(), s.handleCheckBranch)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(controlIndexingTool(), s.handleControlIndexing)
}

// startBuild runs a build detached from the tool call
func (s *Server) startBuild(streaming bool) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.lastErr = nil
	s.mu.Unlock()

	s.builds.Add(1)
	go func() {
		defer s.builds.Done()
		err := s.ws.Index(ctx, streaming, nil)
		if err != nil {
			s.logger.Warn("background build ended", slog.String("error", err.Error()))
		}
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
	}()
}

func (s *Server) lastBuildError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
