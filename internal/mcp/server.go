package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/afterimage-mcp/internal/engine"
)

const (
	// ServerName is the MCP server name
	ServerName = "afterimage-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server exposes the engine's knowledge base as MCP tools
type Server struct {
	mcp    *server.MCPServer
	engine *engine.Engine
}

// NewServer creates a new MCP server instance. The caller keeps ownership of
// eng and closes it after Serve returns.
func NewServer(eng *engine.Engine) *Server {
	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion),
		engine: eng,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until ctx is cancelled or
// stdin closes
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(injectContextTool(), s.handleInjectContext)
	s.mcp.AddTool(searchMemoryTool(), s.handleSearchMemory)
	s.mcp.AddTool(storeCodeTool(), s.handleStoreCode)
	s.mcp.AddTool(recentMemoriesTool(), s.handleRecentMemories)
	s.mcp.AddTool(memoryStatsTool(), s.handleMemoryStats)
	s.mcp.AddTool(ingestDirectoryTool(), s.handleIngestDirectory)
}
