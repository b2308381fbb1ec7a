package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// injectContextTool returns the tool definition for inject_context
func injectContextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "inject_context",
		Description: "Find code remembered from earlier edits that relates to code about to be written, rendered within a token budget",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path of the file being written",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "New file content (Write) or replacement text (Edit)",
				},
				"tool_type": map[string]interface{}{
					"type":        "string",
					"description": "Tool performing the write",
					"enum":        []string{"Write", "Edit"},
					"default":     "Write",
				},
				"project_root": map[string]interface{}{
					"type":        "string",
					"description": "Project root used for proximity scoring; detected from file_path when omitted",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of memories considered (1-100)",
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"file_path", "content"},
		},
	}
}

// searchMemoryTool returns the tool definition for search_memory
func searchMemoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_memory",
		Description: "Search remembered code by keywords or meaning",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (identifiers, keywords or a description)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"path_filter": map[string]interface{}{
					"type":        "string",
					"description": "Only return memories whose file path contains this text",
				},
				"threshold": map[string]interface{}{
					"type":        "number",
					"description": "Minimum relevance score (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (semantic + keyword), vector (semantic only), or keyword (BM25 only)",
					"enum":        []string{"hybrid", "vector", "keyword"},
					"default":     "hybrid",
				},
			},
			Required: []string{"query"},
		},
	}
}

// storeCodeTool returns the tool definition for store_code
func storeCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "store_code",
		Description: "Remember a piece of written or edited code",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path of the file the code belongs to",
				},
				"new_code": map[string]interface{}{
					"type":        "string",
					"description": "The code as written",
				},
				"old_code": map[string]interface{}{
					"type":        "string",
					"description": "The code it replaced, for edits",
				},
				"context": map[string]interface{}{
					"type":        "string",
					"description": "Why the change was made",
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session the change belongs to",
				},
			},
			Required: []string{"file_path", "new_code"},
		},
	}
}

// recentMemoriesTool returns the tool definition for recent_memories
func recentMemoriesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "recent_memories",
		Description: "List the most recently remembered code, optionally for one session or path",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of entries (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Only list entries from this session",
				},
				"path_filter": map[string]interface{}{
					"type":        "string",
					"description": "Only list entries whose file path contains this text",
				},
			},
		},
	}
}

// memoryStatsTool returns the tool definition for memory_stats
func memoryStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_stats",
		Description: "Report knowledge base size, embedding coverage and cache statistics",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// ingestDirectoryTool returns the tool definition for ingest_directory
func ingestDirectoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_directory",
		Description: "Seed the knowledge base with every code file under a directory",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the directory to ingest",
				},
				"skip_embeddings": map[string]interface{}{
					"type":        "boolean",
					"description": "Store without vectors (keyword search only)",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}
