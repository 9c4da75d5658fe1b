package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposePromptSections(t *testing.T) {
	grounding := "DOCUMENT_ID: d1\nTITLE: Policy.pdf\nCONTENT: refunds are processed within 14 days"
	window := []HistoryEntry{
		{Question: "Who wrote it?", Answer: "Legal."},
		{Question: "When?", Answer: "2024."},
	}

	prompt := ComposePrompt(grounding, window, "What is the refund window?")

	assert.Contains(t, prompt, "CONTEXT:\n"+grounding)
	assert.Contains(t, prompt, "CHAT HISTORY:\nUser: Who wrote it?\nAI: Legal.\nUser: When?\nAI: 2024.")
	assert.Contains(t, prompt, "QUESTION:\nWhat is the refund window?")
	assert.Contains(t, prompt, `"answer"`)
	assert.Contains(t, prompt, `"citations"`)
	assert.Contains(t, prompt, `"docTitle"`)

	order := []string{"CONTEXT:", "CHAT HISTORY:", "QUESTION:", "INSTRUCTIONS:"}
	last := -1
	for _, marker := range order {
		idx := strings.Index(prompt, marker)
		assert.Greater(t, idx, last, marker)
		last = idx
	}
}

func TestComposePromptWithoutHistory(t *testing.T) {
	prompt := ComposePrompt("ctx", nil, "q")
	assert.Contains(t, prompt, "CHAT HISTORY:\n(none)")
}
