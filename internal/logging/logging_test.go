package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	charmlog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/afterimage-mcp/internal/injector"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    charmlog.Level
		wantErr bool
	}{
		{"debug", charmlog.DebugLevel, false},
		{"INFO", charmlog.InfoLevel, false},
		{" warn ", charmlog.WarnLevel, false},
		{"error", charmlog.ErrorLevel, false},
		{"", charmlog.InfoLevel, false},
		{"verbose", charmlog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown", "file", "a.go")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "file=a.go")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", JSON: true, Output: &buf})

	logger.Info("stored", "id", "abc")

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &rec))
	assert.Equal(t, "stored", rec["msg"])
	assert.Equal(t, "abc", rec["id"])
}

func TestDiagnosticsSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewDiagnosticsSink(New(Config{Level: "debug", JSON: true, Output: &buf}))

	sink.Report(injector.Event{
		Level:  injector.LevelFailure,
		Kind:   injector.KindInjectionFailure,
		Err:    errors.New("boom"),
		Fields: map[string]any{"file": "/p/a.go", "candidates": 3},
	})
	sink.Report(injector.Event{Level: injector.LevelWarning, Kind: injector.KindScoringDegraded})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var failure, warning map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &failure))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &warning))

	assert.Equal(t, "error", failure["level"])
	assert.Equal(t, injector.KindInjectionFailure, failure["kind"])
	assert.Equal(t, "boom", failure["err"])
	assert.Equal(t, "/p/a.go", failure["file"])
	assert.Equal(t, "warn", warning["level"])
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard().Error("nothing")
		NewDiagnosticsSink(nil).Report(injector.Event{Kind: "x"})
	})
}
