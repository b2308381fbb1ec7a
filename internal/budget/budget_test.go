package budget

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/afterimage-mcp/internal/tokens"
)

// linesOfTokens builds n lines that each cost 10 heuristic tokens
// including the newline.
func linesOfTokens(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %03d %s", i, strings.Repeat("x", 30))
	}
	return strings.Join(lines, "\n")
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Tier
		ceiling int
		wantErr bool
	}{
		{"minimal", "minimal", TierMinimal, 500, false},
		{"compact", "compact", TierCompact, 1000, false},
		{"standard mixed case", " Standard ", TierStandard, 2000, false},
		{"extended", "extended", TierExtended, 4000, false},
		{"maximum", "maximum", TierMaximum, 8000, false},
		{"unknown", "huge", "", 0, true},
		{"empty", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, err := ParseTier(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnknownTier))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tier)
			assert.Equal(t, tt.ceiling, tier.Ceiling())
		})
	}
}

func TestTiers_Ascending(t *testing.T) {
	tiers := Tiers()
	require.Len(t, tiers, 5)
	for i := 1; i < len(tiers); i++ {
		assert.Greater(t, tiers[i].Ceiling(), tiers[i-1].Ceiling())
	}
}

func TestNewForTier(t *testing.T) {
	m, err := NewForTier(nil, TierCompact)
	require.NoError(t, err)
	assert.Equal(t, 1000, m.Ceiling())

	_, err = NewForTier(nil, Tier("bogus"))
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestFitsInBudget(t *testing.T) {
	m := New(tokens.Heuristic{}, 10)

	assert.True(t, m.FitsInBudget(""))
	assert.True(t, m.FitsInBudget(strings.Repeat("a", 40)))
	assert.False(t, m.FitsInBudget(strings.Repeat("a", 41)))
}

func TestAllocate_GreedyByScore(t *testing.T) {
	m := New(tokens.Heuristic{}, 0)
	text := strings.Repeat("a", 40) // 10 tokens

	alloc := m.Allocate([]Item{
		{Key: "low", Score: 0.2, Text: text},
		{Key: "high", Score: 0.9, Text: text},
		{Key: "mid", Score: 0.5, Text: text},
	}, 25)

	require.Len(t, alloc.Items, 2)
	assert.Equal(t, "high", alloc.Items[0].Key)
	assert.Equal(t, "mid", alloc.Items[1].Key)
	assert.Equal(t, 20, alloc.TokensUsed)
	assert.False(t, alloc.Truncated)
}

func TestAllocate_StopsAtFirstMisfit(t *testing.T) {
	m := New(tokens.Heuristic{}, 0)

	alloc := m.Allocate([]Item{
		{Key: "a", Score: 0.9, Text: strings.Repeat("a", 40)},  // 10
		{Key: "b", Score: 0.8, Text: strings.Repeat("b", 120)}, // 30
		{Key: "c", Score: 0.7, Text: strings.Repeat("c", 20)},  // 5
	}, 25)

	require.Len(t, alloc.Items, 1)
	assert.Equal(t, "a", alloc.Items[0].Key)
	assert.Equal(t, 10, alloc.TokensUsed)
	assert.False(t, alloc.Truncated)
}

func TestAllocate_StableOnTies(t *testing.T) {
	m := New(tokens.Heuristic{}, 0)

	alloc := m.Allocate([]Item{
		{Key: "first", Score: 0.5, Text: "x"},
		{Key: "second", Score: 0.5, Text: "y"},
		{Key: "third", Score: 0.5, Text: "z"},
	}, 100)

	require.Len(t, alloc.Items, 3)
	assert.Equal(t, []string{"first", "second", "third"},
		[]string{alloc.Items[0].Key, alloc.Items[1].Key, alloc.Items[2].Key})
}

func TestAllocate_OversizeFirstItemIsTruncated(t *testing.T) {
	m := New(tokens.Heuristic{}, 0)
	text := linesOfTokens(120)
	require.Equal(t, 1200, m.Estimate(text))

	alloc := m.Allocate([]Item{{Key: "big", Score: 1, Text: text}}, 500)

	require.Len(t, alloc.Items, 1)
	assert.True(t, alloc.Truncated)
	assert.Equal(t, 500, alloc.TokensUsed)
	assert.True(t, strings.HasPrefix(text, alloc.Items[0].Text))
	assert.Equal(t, 50, strings.Count(alloc.Items[0].Text, "\n")+1)
}

func TestAllocate_OverheadIsReserved(t *testing.T) {
	m := New(tokens.Heuristic{}, 0)

	alloc := m.Allocate([]Item{{Key: "big", Score: 1, Overhead: 20, Text: linesOfTokens(120)}}, 500)

	require.Len(t, alloc.Items, 1)
	assert.True(t, alloc.Truncated)
	assert.LessOrEqual(t, alloc.TokensUsed, 500)
	assert.LessOrEqual(t, m.Estimate(alloc.Items[0].Text), 480)
}

func TestAllocate_NoRoomForFraming(t *testing.T) {
	m := New(tokens.Heuristic{}, 0)

	alloc := m.Allocate([]Item{{Key: "big", Score: 1, Overhead: 50, Text: "body"}}, 40)

	assert.Empty(t, alloc.Items)
	assert.Zero(t, alloc.TokensUsed)
	assert.False(t, alloc.Truncated)
}

func TestAllocate_EmptyInputs(t *testing.T) {
	m := New(tokens.Heuristic{}, 0)

	assert.Empty(t, m.Allocate(nil, 100).Items)
	assert.Empty(t, m.Allocate([]Item{{Text: "x"}}, 0).Items)
}

func TestAllocate_NeverExceedsBudget(t *testing.T) {
	m := New(tokens.Heuristic{}, 0)
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		n := rng.Intn(8) + 1
		items := make([]Item, n)
		for i := range items {
			items[i] = Item{
				Key:      fmt.Sprintf("item-%d", i),
				Score:    rng.Float64(),
				Overhead: rng.Intn(15),
				Text:     linesOfTokens(rng.Intn(60) + 1),
			}
		}
		maxTokens := rng.Intn(400) + 1

		alloc := m.Allocate(items, maxTokens)

		assert.LessOrEqual(t, alloc.TokensUsed, maxTokens, "round %d", round)
		sum := 0
		for _, it := range alloc.Items {
			sum += m.Cost(it)
		}
		assert.Equal(t, sum, alloc.TokensUsed, "round %d", round)
		if alloc.Truncated {
			assert.Len(t, alloc.Items, 1, "round %d", round)
		}
	}
}

func TestTruncate(t *testing.T) {
	m := New(tokens.Heuristic{}, 0)

	t.Run("fits unchanged", func(t *testing.T) {
		assert.Equal(t, "short", m.Truncate("short", 10))
	})

	t.Run("line boundary", func(t *testing.T) {
		out := m.Truncate(linesOfTokens(10), 35)
		assert.Equal(t, linesOfTokens(3), out)
	})

	t.Run("single long line is cut on runes", func(t *testing.T) {
		long := strings.Repeat("é", 1000)
		out := m.Truncate(long, 10)
		assert.True(t, utf8.ValidString(out))
		assert.LessOrEqual(t, m.Estimate(out), 10)
		assert.Equal(t, 20, utf8.RuneCountInString(out))
	})

	t.Run("zero budget", func(t *testing.T) {
		assert.Empty(t, m.Truncate("anything", 0))
	})
}
