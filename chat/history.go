package chat

// WindowHistory returns the last k turns in chronological order.
func WindowHistory(history []Turn, k int) []HistoryEntry {
	if k <= 0 || len(history) == 0 {
		return nil
	}
	start := len(history) - k
	if start < 0 {
		start = 0
	}

	window := make([]HistoryEntry, 0, len(history)-start)
	for _, turn := range history[start:] {
		window = append(window, HistoryEntry{Question: turn.Question, Answer: turn.Answer})
	}
	return window
}
