package injector

// Level is the severity of a diagnostic event
type Level string

const (
	LevelWarning Level = "warning"
	LevelFailure Level = "failure"
)

// Event kinds
const (
	KindScoringDegraded  = "scoring_degraded"
	KindInjectionFailure = "injection_failure"
	KindFallbackFailure  = "fallback_failure"
)

// Event is one structured diagnostic
type Event struct {
	Level  Level
	Kind   string
	Err    error
	Fields map[string]any
}

// Diagnostics receives failure and warning events. Implementations must not
// block.
type Diagnostics interface {
	Report(Event)
}

type nopDiagnostics struct{}

func (nopDiagnostics) Report(Event) {}
