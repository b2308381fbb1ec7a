package tokens

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// CharsPerToken is the divisor of the heuristic estimator
	CharsPerToken = 4

	// DefaultEncoding is the tiktoken encoding used when none is configured
	DefaultEncoding = "cl100k_base"

	EstimatorHeuristic = "heuristic"
	EstimatorTiktoken  = "tiktoken"
)

// ErrUnknownEstimator is returned by New for an unrecognized estimator name
var ErrUnknownEstimator = errors.New("unknown token estimator")

// Estimator turns text into a token count. Implementations must be
// deterministic: the same text always yields the same count, because chunk
// cache keys and budget decisions depend on it.
type Estimator interface {
	Estimate(text string) int
	Name() string
}

// Heuristic estimates ceil(len(bytes)/4). It is subadditive, so the estimate
// of a concatenation never exceeds the sum of the parts' estimates.
type Heuristic struct{}

// Estimate returns the estimated token count of text
func (Heuristic) Estimate(text string) int {
	return (len(text) + CharsPerToken - 1) / CharsPerToken
}

// Name returns the estimator name
func (Heuristic) Name() string { return EstimatorHeuristic }

// Tiktoken counts BPE tokens with a tiktoken encoding
type Tiktoken struct {
	encoding string
	mu       sync.Mutex
	tke      *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding. Loading may need to fetch the BPE
// ranks on first use, so callers construct it once at startup.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	tke, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return &Tiktoken{encoding: encoding, tke: tke}, nil
}

// Estimate returns the BPE token count of text
func (t *Tiktoken) Estimate(text string) int {
	if text == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tke.Encode(text, nil, nil))
}

// Name returns the estimator name including the encoding
func (t *Tiktoken) Name() string { return EstimatorTiktoken + ":" + t.encoding }

// New builds the named estimator. An empty name selects the heuristic.
func New(name, encoding string) (Estimator, error) {
	switch name {
	case "", EstimatorHeuristic:
		return Heuristic{}, nil
	case EstimatorTiktoken:
		return NewTiktoken(encoding)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEstimator, name)
	}
}

// NewWithFallback builds the named estimator and falls back to the heuristic
// when it cannot be constructed. The returned error reports the fallback and
// is informational.
func NewWithFallback(name, encoding string) (Estimator, error) {
	est, err := New(name, encoding)
	if err != nil {
		return Heuristic{}, err
	}
	return est, nil
}
