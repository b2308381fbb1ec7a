package hook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/dshills/afterimage-mcp/internal/engine"
	"github.com/dshills/afterimage-mcp/internal/injector"
)

// Hook event names
const (
	EventPreToolUse  = "PreToolUse"
	EventPostToolUse = "PostToolUse"
)

// EnvSessionID is consulted when the payload carries no session id
const EnvSessionID = "CLAUDE_SESSION_ID"

// maxInputBytes bounds the payload read from stdin
const maxInputBytes = 16 << 20

// Input is the JSON payload the assistant sends on stdin
type Input struct {
	HookEventName string    `json:"hook_event_name"`
	ToolName      string    `json:"tool_name"`
	ToolInput     ToolInput `json:"tool_input"`
	SessionID     string    `json:"session_id,omitempty"`
	Cwd           string    `json:"cwd,omitempty"`
}

// ToolInput holds the Write/Edit arguments
type ToolInput struct {
	FilePath  string `json:"file_path"`
	Content   string `json:"content,omitempty"`
	OldString string `json:"old_string,omitempty"`
	NewString string `json:"new_string,omitempty"`
}

// Output is written to stdout to deny a tool call with a reason
type Output struct {
	HookSpecificOutput SpecificOutput `json:"hookSpecificOutput"`
}

// SpecificOutput carries the permission decision
type SpecificOutput struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason"`
}

// Engine is the part of engine.Engine the hook needs
type Engine interface {
	BuildContext(ctx context.Context, req engine.ContextRequest) (*engine.ContextResult, error)
	Remember(ctx context.Context, m engine.Memory) (string, error)
}

// Handler processes one hook invocation
type Handler struct {
	engine Engine
	seen   *SeenWrites
	logger *charmlog.Logger
	now    func() time.Time
}

// NewHandler creates a hook handler
func NewHandler(eng Engine, seen *SeenWrites, logger *charmlog.Logger) *Handler {
	return &Handler{engine: eng, seen: seen, logger: logger, now: time.Now}
}

// Handle reads one payload from in and writes a decision to out when the
// call should be denied. Errors are returned for logging only: the caller
// always exits 0 so that a failure never blocks the tool call.
func (h *Handler) Handle(ctx context.Context, in io.Reader, out io.Writer) error {
	var input Input
	if err := json.NewDecoder(io.LimitReader(in, maxInputBytes)).Decode(&input); err != nil {
		return fmt.Errorf("failed to decode hook input: %w", err)
	}
	if input.ToolName != string(injector.ToolWrite) && input.ToolName != string(injector.ToolEdit) {
		return nil
	}
	if input.ToolInput.FilePath == "" {
		return nil
	}

	switch input.HookEventName {
	case EventPreToolUse:
		return h.preToolUse(ctx, input, out)
	case EventPostToolUse:
		return h.postToolUse(ctx, input)
	default:
		return nil
	}
}

// preToolUse denies the first attempt of a write with related context. The
// retry of the same content is let through.
func (h *Handler) preToolUse(ctx context.Context, input Input, out io.Writer) error {
	content := input.ToolInput.Content
	if content == "" {
		content = input.ToolInput.NewString
	}
	if content == "" {
		return nil
	}

	filePath := absPath(input.ToolInput.FilePath, input.Cwd)
	hash := AttemptHash(filePath, content)
	if h.seen.Seen(hash) {
		return nil
	}

	res, err := h.engine.BuildContext(ctx, engine.ContextRequest{
		FilePath: filePath,
		Content:  content,
		ToolType: injector.ToolType(input.ToolName),
	})
	if err != nil {
		return err
	}
	if res.IsEmpty() {
		return nil
	}

	if err := h.seen.Mark(hash); err != nil {
		// Without the mark the retry would be denied again
		return err
	}

	output := Output{HookSpecificOutput: SpecificOutput{
		HookEventName:            EventPreToolUse,
		PermissionDecision:       "deny",
		PermissionDecisionReason: denyReason(res.Text),
	}}
	return json.NewEncoder(out).Encode(output)
}

func denyReason(injection string) string {
	return injection + "\nReview these patterns from earlier edits, then retry the write unchanged or adjusted.\n"
}

// postToolUse remembers the code that was just written
func (h *Handler) postToolUse(ctx context.Context, input Input) error {
	m := engine.Memory{
		FilePath:  absPath(input.ToolInput.FilePath, input.Cwd),
		SessionID: h.sessionID(input),
	}
	switch input.ToolName {
	case string(injector.ToolWrite):
		m.NewCode = input.ToolInput.Content
	case string(injector.ToolEdit):
		m.NewCode = input.ToolInput.NewString
		m.OldCode = input.ToolInput.OldString
	}
	if m.NewCode == "" {
		return nil
	}

	_, err := h.engine.Remember(ctx, m)
	if errors.Is(err, engine.ErrNotCode) {
		return nil
	}
	if err != nil {
		return err
	}
	h.logger.Info("stored", "file", filepath.Base(m.FilePath), "tool", input.ToolName)
	return nil
}

func (h *Handler) sessionID(input Input) string {
	if input.SessionID != "" {
		return input.SessionID
	}
	if env := os.Getenv(EnvSessionID); env != "" {
		return env
	}
	return "session_" + h.now().UTC().Format("20060102_150405")
}

func absPath(path, cwd string) string {
	if filepath.IsAbs(path) || cwd == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(cwd, path)
}
