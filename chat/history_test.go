package chat

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func turns(n int) []Turn {
	out := make([]Turn, n)
	for i := range out {
		out[i] = Turn{
			Question:  fmt.Sprintf("q%d", i+1),
			Answer:    fmt.Sprintf("a%d", i+1),
			Citations: []Citation{{DocTitle: "Doc", Snippet: "s"}},
		}
	}
	return out
}

func TestWindowHistoryReturnsLastK(t *testing.T) {
	window := WindowHistory(turns(5), 3)

	assert.Equal(t, []HistoryEntry{
		{Question: "q3", Answer: "a3"},
		{Question: "q4", Answer: "a4"},
		{Question: "q5", Answer: "a5"},
	}, window)
}

func TestWindowHistoryShorterThanK(t *testing.T) {
	window := WindowHistory(turns(2), 3)
	assert.Len(t, window, 2)
	assert.Equal(t, "q1", window[0].Question)
}

func TestWindowHistoryEmptyAndZero(t *testing.T) {
	assert.Empty(t, WindowHistory(nil, 3))
	assert.Empty(t, WindowHistory(turns(4), 0))
}

func TestWindowHistoryNeverExceedsK(t *testing.T) {
	for n := 0; n <= 6; n++ {
		for k := 0; k <= 4; k++ {
			window := WindowHistory(turns(n), k)
			assert.LessOrEqual(t, len(window), k)
			assert.LessOrEqual(t, len(window), n)
		}
	}
}
