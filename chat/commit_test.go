package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveTitle(t *testing.T) {
	cases := []struct {
		name     string
		question string
		limit    int
		want     string
	}{
		{"short", "What is the refund window?", 30, "What is the refund window?"},
		{"exact", strings.Repeat("a", 30), 30, strings.Repeat("a", 30)},
		{"long", "How long does it take to process a refund request?", 30, "How long does it take to proce..."},
		{"multibyte", "Wie lange dauert die Rückerstattung für Bestellungen?", 25, "Wie lange dauert die Rück..."},
		{"default limit", strings.Repeat("x", 40), 0, strings.Repeat("x", 30) + "..."},
		{"trimmed", "   spaced   ", 30, "spaced"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveTitle(tc.question, tc.limit))
		})
	}
}

func TestAppendTurnSetsTitleOnlyOnFirstTurn(t *testing.T) {
	session := Session{ID: "s1", Title: DefaultSessionTitle}

	first := appendTurn(session, Turn{Question: "First question", Answer: "a"}, 30)
	assert.Equal(t, "First question", first.Title)
	require.Len(t, first.History, 1)

	second := appendTurn(first, Turn{Question: "Second question", Answer: "b"}, 30)
	assert.Equal(t, "First question", second.Title)
	require.Len(t, second.History, 2)
	assert.Equal(t, "Second question", second.History[1].Question)
}

func TestAppendTurnDoesNotMutateInput(t *testing.T) {
	history := make([]Turn, 1, 4)
	history[0] = Turn{Question: "q1", Answer: "a1"}
	session := Session{ID: "s1", Title: "q1", History: history}

	updated := appendTurn(session, Turn{Question: "q2", Answer: "a2"}, 30)

	assert.Len(t, session.History, 1)
	assert.Len(t, updated.History, 2)
	assert.Equal(t, Turn{}, history[:2][1], "backing array of the original history is untouched")
}
