package chat

import "strings"

// ComposePrompt builds the single instruction prompt for a turn.
func ComposePrompt(grounding string, window []HistoryEntry, question string) string {
	var sb strings.Builder
	sb.WriteString(personaPrompt())
	sb.WriteString("\n\nCONTEXT:\n")
	sb.WriteString(grounding)
	sb.WriteString("\n\nCHAT HISTORY:\n")
	sb.WriteString(formatHistory(window))
	sb.WriteString("\n\nQUESTION:\n")
	sb.WriteString(question)
	sb.WriteString("\n\n")
	sb.WriteString(outputInstructions())
	return sb.String()
}

func personaPrompt() string {
	return "You are a helpful knowledge assistant. You answer questions about the user's own documents, which are listed under CONTEXT. Each document starts with DOCUMENT_ID, TITLE and CONTENT lines."
}

func formatHistory(window []HistoryEntry) string {
	if len(window) == 0 {
		return "(none)"
	}
	lines := make([]string, 0, len(window))
	for _, entry := range window {
		lines = append(lines, "User: "+entry.Question+"\nAI: "+entry.Answer)
	}
	return strings.Join(lines, "\n")
}

func outputInstructions() string {
	return `INSTRUCTIONS:
1. Answer the question using ONLY the provided context. If the context does not contain the answer, say so in the answer.
2. Provide citations for every claim. Copy docTitle exactly as it appears on the TITLE line, and copy snippet verbatim from that document's CONTENT.
3. Respond with a single JSON object and nothing else: no markdown, no code fences, no commentary.
4. The object must have exactly two top-level fields:
   - "answer": a non-empty string
   - "citations": an array of objects, each with exactly the string fields "docTitle" and "snippet" (use [] when nothing is cited)
Example:
{"answer": "...", "citations": [{"docTitle": "...", "snippet": "..."}]}`
}
