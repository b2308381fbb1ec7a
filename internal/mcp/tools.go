package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/afterimage-mcp/internal/engine"
	"github.com/dshills/afterimage-mcp/internal/ingest"
	"github.com/dshills/afterimage-mcp/internal/injector"
	"github.com/dshills/afterimage-mcp/internal/searcher"
	"github.com/dshills/afterimage-mcp/internal/storage"
	"github.com/dshills/afterimage-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams        = -32602 // Invalid method parameters
	ErrorCodeInternalError        = -32603 // Internal JSON-RPC error
	ErrorCodeNotCode              = -32001 // File rejected by the code filter
	ErrorCodeIngestInProgress     = -32002 // Another ingest is already running
	ErrorCodeEmbeddingUnavailable = -32003 // Vector search without an embedding provider
	ErrorCodeEmptyQuery           = -32004 // Query parameter is empty
)

const (
	defaultListLimit  = 10
	maxListLimit      = 100
	maxReportedErrors = 5
)

// handleInjectContext handles the inject_context tool invocation
func (s *Server) handleInjectContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	filePath, err := requireString(args, "file_path")
	if err != nil {
		return nil, err
	}
	content, err := requireString(args, "content")
	if err != nil {
		return nil, err
	}

	toolType := injector.ToolType(getStringDefault(args, "tool_type", string(injector.ToolWrite)))
	if toolType != injector.ToolWrite && toolType != injector.ToolEdit {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid tool_type", map[string]interface{}{
			"param":   "tool_type",
			"value":   toolType,
			"allowed": []string{string(injector.ToolWrite), string(injector.ToolEdit)},
		})
	}

	limit := getIntDefault(args, "limit", 0)
	if limit < 0 || limit > maxListLimit {
		return nil, limitError(limit)
	}

	res, err := s.engine.BuildContext(ctx, engine.ContextRequest{
		FilePath:    filePath,
		Content:     content,
		ToolType:    toolType,
		ProjectRoot: getStringDefault(args, "project_root", ""),
		Limit:       limit,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "context injection failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"injected":          !res.IsEmpty(),
		"text":              res.Text,
		"query":             res.Query,
		"candidates":        res.Candidates,
		"snippets_included": res.SnippetsIncluded,
		"tokens_used":       res.TokensUsed,
		"truncated":         res.Truncated,
	}
	if res.Degraded {
		response["degraded"] = true
		if res.Cause != nil {
			response["cause"] = res.Cause.Error()
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchMemory handles the search_memory tool invocation
func (s *Server) handleSearchMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		return nil, limitError(limit)
	}

	threshold := getFloatDefault(args, "threshold", 0)
	if threshold < 0 || threshold > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "threshold must be between 0 and 1", map[string]interface{}{
			"param": "threshold",
			"value": threshold,
		})
	}

	searchMode := searcher.SearchMode(getStringDefault(args, "search_mode", string(searcher.SearchModeHybrid)))
	switch searchMode {
	case searcher.SearchModeHybrid, searcher.SearchModeVector, searcher.SearchModeKeyword:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   searchMode,
			"allowed": []string{"hybrid", "vector", "keyword"},
		})
	}

	resp, err := s.engine.Searcher.Search(ctx, searcher.Request{
		Query:      query,
		Limit:      limit,
		Threshold:  threshold,
		PathFilter: getStringDefault(args, "path_filter", ""),
		Mode:       searchMode,
	})
	switch {
	case errors.Is(err, searcher.ErrEmptyQuery):
		return nil, newMCPError(ErrorCodeEmptyQuery, "query has no searchable terms", nil)
	case errors.Is(err, types.ErrEmbeddingUnavailable):
		return nil, newMCPError(ErrorCodeEmbeddingUnavailable, "vector search needs an embedding provider", nil)
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for i, r := range resp.Results {
		item := memoryJSON(r.Entry)
		item["rank"] = i + 1
		item["relevance_score"] = round(r.Score)
		item["fts_score"] = round(r.FTSScore)
		item["semantic_score"] = round(r.SemanticScore)
		results = append(results, item)
	}

	response := map[string]interface{}{
		"results":       results,
		"total_results": len(results),
		"search_mode":   resp.Mode,
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
	}
	if resp.SemanticError != nil {
		response["semantic_error"] = resp.SemanticError.Error()
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleStoreCode handles the store_code tool invocation
func (s *Server) handleStoreCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	filePath, err := requireString(args, "file_path")
	if err != nil {
		return nil, err
	}
	newCode, err := requireString(args, "new_code")
	if err != nil {
		return nil, err
	}

	id, err := s.engine.Remember(ctx, engine.Memory{
		FilePath:  filePath,
		NewCode:   newCode,
		OldCode:   getStringDefault(args, "old_code", ""),
		Context:   getStringDefault(args, "context", ""),
		SessionID: getStringDefault(args, "session_id", ""),
	})
	if errors.Is(err, engine.ErrNotCode) {
		return nil, newMCPError(ErrorCodeNotCode, "file is not code", map[string]interface{}{
			"param": "file_path",
			"value": filePath,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to store code", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"stored": true,
		"id":     id,
	})), nil
}

// handleRecentMemories handles the recent_memories tool invocation
func (s *Server) handleRecentMemories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	limit := getIntDefault(args, "limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		return nil, limitError(limit)
	}

	var (
		entries []*storage.MemoryEntry
		err     error
	)
	session := getStringDefault(args, "session_id", "")
	pathFilter := getStringDefault(args, "path_filter", "")
	switch {
	case session != "" && pathFilter != "":
		return nil, newMCPError(ErrorCodeInvalidParams, "session_id and path_filter are mutually exclusive", map[string]interface{}{
			"param": "path_filter",
		})
	case session != "":
		entries, err = s.engine.Storage.BySession(ctx, session, limit)
	case pathFilter != "":
		entries, err = s.engine.Storage.SearchByPath(ctx, pathFilter, limit)
	default:
		entries, err = s.engine.Storage.Recent(ctx, limit)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list memories", map[string]interface{}{
			"error": err.Error(),
		})
	}

	items := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		items = append(items, memoryJSON(e))
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"memories": items,
		"count":    len(items),
	})), nil
}

// handleMemoryStats handles the memory_stats tool invocation
func (s *Server) handleMemoryStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.engine.Storage.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get statistics", map[string]interface{}{
			"error": err.Error(),
		})
	}

	coverage := 0.0
	if stats.TotalEntries > 0 {
		coverage = float64(stats.WithEmbeddings) / float64(stats.TotalEntries)
	}

	statistics := map[string]interface{}{
		"total_entries":           stats.TotalEntries,
		"entries_with_embeddings": stats.WithEmbeddings,
		"embedding_coverage":      round(coverage),
		"unique_files":            stats.UniqueFiles,
		"unique_sessions":         stats.UniqueSessions,
		"db_size_mb":              fmt.Sprintf("%.2f", float64(stats.DBSizeBytes)/(1024*1024)),
	}
	if stats.OldestEntry != nil && stats.NewestEntry != nil {
		statistics["oldest_entry"] = stats.OldestEntry.Format(time.RFC3339)
		statistics["newest_entry"] = stats.NewestEntry.Format(time.RFC3339)
	}

	response := map[string]interface{}{
		"statistics": statistics,
		"storage": map[string]interface{}{
			"path":           s.engine.Config.Storage.Path,
			"schema_version": stats.SchemaVersion,
			"build_mode":     stats.BuildMode,
		},
		"embeddings": map[string]interface{}{
			"provider":  s.engine.Embedder.Provider(),
			"model":     s.engine.Embedder.Model(),
			"dimension": s.engine.Embedder.Dimension(),
		},
		"tokens": map[string]interface{}{
			"estimator": s.engine.Estimator.Name(),
		},
	}
	if s.engine.Cache != nil {
		cs := s.engine.Cache.Stats()
		response["chunk_cache"] = map[string]interface{}{
			"size":      cs.Size,
			"hits":      cs.Hits,
			"misses":    cs.Misses,
			"evictions": cs.Evictions,
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIngestDirectory handles the ingest_directory tool invocation
func (s *Server) handleIngestDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}
	if err := validateDir(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	res, err := s.engine.Ingest(ctx, path, &ingest.Config{
		SkipEmbeddings: getBoolDefault(args, "skip_embeddings", false),
	})
	if errors.Is(err, ingest.ErrInProgress) {
		return nil, newMCPError(ErrorCodeIngestInProgress, "an ingest is already running", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "ingest failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"ingested":        true,
		"files_seen":      res.Seen,
		"files_stored":    res.Stored,
		"files_skipped":   res.Skipped,
		"files_unchanged": res.Unchanged,
		"files_failed":    res.Failed,
		"embed_failures":  res.EmbedFailures,
		"duration_ms":     res.Duration.Milliseconds(),
	}
	if len(res.ErrorMessages) > 0 {
		errorCount := len(res.ErrorMessages)
		if errorCount > maxReportedErrors {
			response["errors"] = res.ErrorMessages[:maxReportedErrors]
			response["error_count"] = errorCount
		} else {
			response["errors"] = res.ErrorMessages
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
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

func limitError(limit int) error {
	return newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
		"param": "limit",
		"value": limit,
	})
}

func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// memoryJSON renders an entry for tool output, without its vector
func memoryJSON(e *storage.MemoryEntry) map[string]interface{} {
	item := map[string]interface{}{
		"id":         e.ID,
		"file_path":  e.FilePath,
		"new_code":   e.NewCode,
		"timestamp":  e.Timestamp.Format(time.RFC3339),
		"session_id": e.SessionID,
		"embedded":   len(e.Embedding) > 0,
	}
	if e.OldCode != "" {
		item["old_code"] = e.OldCode
	}
	if e.Context != "" {
		item["context"] = e.Context
	}
	return item
}

func round(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}

// validateDir checks if a path is an absolute, readable directory
func validateDir(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
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

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
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

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
