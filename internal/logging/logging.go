package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	charmlog "github.com/charmbracelet/log"

	"github.com/dshills/afterimage-mcp/internal/injector"
)

// Config controls logger construction
type Config struct {
	Level  string
	JSON   bool
	Output io.Writer
}

// ParseLevel validates a level name (debug, info, warn, error)
func ParseLevel(name string) (charmlog.Level, error) {
	if strings.TrimSpace(name) == "" {
		return charmlog.InfoLevel, nil
	}
	level, err := charmlog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return charmlog.InfoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// New builds a structured logger. Output defaults to stderr because stdout
// carries the hook and MCP protocols. An invalid level falls back to info.
func New(cfg Config) *charmlog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	level, _ := ParseLevel(cfg.Level)

	logger := charmlog.NewWithOptions(out, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           level,
		Prefix:          "afterimage",
	})
	if cfg.JSON {
		logger.SetFormatter(charmlog.JSONFormatter)
	} else {
		logger.SetFormatter(charmlog.TextFormatter)
	}
	return logger
}

// Discard returns a logger that writes nowhere
func Discard() *charmlog.Logger {
	return charmlog.NewWithOptions(io.Discard, charmlog.Options{Level: charmlog.FatalLevel})
}

// DiagnosticsSink forwards injector diagnostics to a logger: warnings at
// warn level, failures at error level.
type DiagnosticsSink struct {
	logger *charmlog.Logger
}

// NewDiagnosticsSink wraps logger as an injector.Diagnostics
func NewDiagnosticsSink(logger *charmlog.Logger) *DiagnosticsSink {
	if logger == nil {
		logger = Discard()
	}
	return &DiagnosticsSink{logger: logger}
}

// Report logs one event with its fields as sorted key/value pairs
func (s *DiagnosticsSink) Report(e injector.Event) {
	keyvals := []any{"kind", e.Kind}
	if e.Err != nil {
		keyvals = append(keyvals, "err", e.Err.Error())
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		keyvals = append(keyvals, k, e.Fields[k])
	}

	switch e.Level {
	case injector.LevelFailure:
		s.logger.Error("injection diagnostic", keyvals...)
	default:
		s.logger.Warn("injection diagnostic", keyvals...)
	}
}
