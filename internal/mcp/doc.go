// Package mcp implements the Model Context Protocol (MCP) server for AfterImage.
//
// The server exposes the code memory knowledge base to AI coding assistants:
//   - inject_context: Render remembered code related to code about to be written
//   - search_memory: Search remembered code by keywords or meaning
//   - store_code: Remember a piece of written or edited code
//   - recent_memories: List the latest memories, optionally for one session
//   - memory_stats: Report knowledge base and cache statistics
//   - ingest_directory: Seed the knowledge base from a directory of code
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started via the serve command:
//
//	afterimage serve
//
// # Tool: inject_context
//
//	Request:
//	{
//	  "name": "inject_context",
//	  "arguments": {
//	    "file_path": "/work/api/user.go",
//	    "content": "package api\n\nfunc LoadUser(...)",
//	    "tool_type": "Write"
//	  }
//	}
//
//	Response:
//	{
//	  "injected": true,
//	  "text": "[AfterImage] 2 related snippet(s) from earlier edits\n...",
//	  "query": "LoadUser user",
//	  "candidates": 4,
//	  "snippets_included": 2,
//	  "tokens_used": 612,
//	  "truncated": false
//	}
//
// The text is already fitted to the configured token budget. An empty text
// means nothing relevant was found.
//
// # Tool: search_memory
//
//	Request:
//	{
//	  "name": "search_memory",
//	  "arguments": {
//	    "query": "session cache lookup",
//	    "limit": 10,
//	    "path_filter": "internal/cache",
//	    "search_mode": "hybrid"
//	  }
//	}
//
// Each result carries the memory plus its combined, keyword and semantic
// scores. When the embedding provider fails a hybrid search still answers
// from the keyword pass and reports semantic_error.
//
// # Errors
//
// Invalid input is reported as an MCPError with a JSON-RPC code:
//
//	-32602  invalid parameters
//	-32603  internal error
//	-32001  file is not code (store_code)
//	-32002  an ingest is already running
//	-32003  vector search without an embedding provider
//	-32004  empty query
package mcp
