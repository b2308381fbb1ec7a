package budget

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/afterimage-mcp/internal/tokens"
)

// Tier is a named token ceiling for the whole injection
type Tier string

const (
	TierMinimal  Tier = "minimal"
	TierCompact  Tier = "compact"
	TierStandard Tier = "standard"
	TierExtended Tier = "extended"
	TierMaximum  Tier = "maximum"
)

var tierCeilings = map[Tier]int{
	TierMinimal:  500,
	TierCompact:  1000,
	TierStandard: 2000,
	TierExtended: 4000,
	TierMaximum:  8000,
}

// ErrUnknownTier is returned for a tier name that is not defined
var ErrUnknownTier = errors.New("unknown budget tier")

// Tiers returns every tier from smallest to largest ceiling
func Tiers() []Tier {
	return []Tier{TierMinimal, TierCompact, TierStandard, TierExtended, TierMaximum}
}

// ParseTier resolves a tier by name
func ParseTier(name string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := tierCeilings[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, name)
	}
	return t, nil
}

// Ceiling returns the tier's token ceiling, or 0 for an unknown tier
func (t Tier) Ceiling() int {
	return tierCeilings[t]
}

// Item is one candidate entry for allocation. Overhead is the token cost of
// the entry's framing (descriptor line, fences) and is never truncated; only
// Text is.
type Item struct {
	Key      string
	Score    float64
	Overhead int
	Text     string
}

// Allocation is the outcome of Allocate
type Allocation struct {
	Items      []Item
	TokensUsed int
	Truncated  bool
}

// Manager enforces token ceilings with a deterministic estimator
type Manager struct {
	estimator tokens.Estimator
	ceiling   int
}

// New creates a manager with an explicit ceiling
func New(estimator tokens.Estimator, ceiling int) *Manager {
	if estimator == nil {
		estimator = tokens.Heuristic{}
	}
	return &Manager{estimator: estimator, ceiling: ceiling}
}

// NewForTier creates a manager whose ceiling is the tier's
func NewForTier(estimator tokens.Estimator, tier Tier) (*Manager, error) {
	if _, ok := tierCeilings[tier]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return New(estimator, tier.Ceiling()), nil
}

// Ceiling returns the configured ceiling
func (m *Manager) Ceiling() int {
	return m.ceiling
}

// Estimate returns the token estimate of text
func (m *Manager) Estimate(text string) int {
	return m.estimator.Estimate(text)
}

// FitsInBudget reports whether text fits under the configured ceiling
func (m *Manager) FitsInBudget(text string) bool {
	return m.estimator.Estimate(text) <= m.ceiling
}

// Cost returns the token cost of an item including its framing
func (m *Manager) Cost(item Item) int {
	return item.Overhead + m.estimator.Estimate(item.Text)
}

// Allocate includes whole items in descending score order while the running
// total stays within maxTokens. When the first item alone does not fit its
// text is truncated on a line boundary to fill the budget and allocation
// stops there. Otherwise allocation stops at the first item that does not fit.
func (m *Manager) Allocate(items []Item, maxTokens int) Allocation {
	var alloc Allocation
	if maxTokens <= 0 || len(items) == 0 {
		return alloc
	}

	ranked := make([]Item, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	for _, item := range ranked {
		cost := m.Cost(item)
		if alloc.TokensUsed+cost <= maxTokens {
			alloc.Items = append(alloc.Items, item)
			alloc.TokensUsed += cost
			continue
		}

		if alloc.TokensUsed == 0 {
			room := maxTokens - item.Overhead
			if room > 0 {
				if text := m.Truncate(item.Text, room); text != "" {
					item.Text = text
					alloc.Items = append(alloc.Items, item)
					alloc.TokensUsed = m.Cost(item)
					alloc.Truncated = true
				}
			}
		}
		break
	}

	return alloc
}

// Truncate returns the longest line prefix of text whose estimate fits
// maxTokens. If not even the first line fits, that line is cut on a rune
// boundary instead.
func (m *Manager) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	if m.estimator.Estimate(text) <= maxTokens {
		return text
	}

	lines := strings.Split(text, "\n")
	lo, hi := 0, len(lines)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if m.estimator.Estimate(strings.Join(lines[:mid], "\n")) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo > 0 {
		return strings.Join(lines[:lo], "\n")
	}

	return m.cutRunes(lines[0], maxTokens)
}

func (m *Manager) cutRunes(line string, maxTokens int) string {
	runes := []rune(line)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if m.estimator.Estimate(string(runes[:mid])) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}
