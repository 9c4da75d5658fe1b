package chat

import (
	"context"
	"fmt"
	"strings"
)

const titleEllipsis = "..."

type committedTurn struct {
	turn    Turn
	session Session
}

// commitTurn appends the turn under the session lock. The session is re-read
// inside the lock so the write is based on the latest history; the store's
// revision check still rejects writers that bypass the lock.
func (s *Service) commitTurn(ctx context.Context, sessionID, ownerID, question string, payload TurnPayload) (committedTurn, error) {
	unlock, err := s.locker.Lock(ctx, sessionLockKey(sessionID))
	if err != nil {
		return committedTurn{}, fmt.Errorf("lock session: %w", err)
	}
	defer unlock()

	session, err := s.sessions.GetSession(ctx, sessionID, ownerID)
	if err != nil {
		return committedTurn{}, fmt.Errorf("reload session: %w", err)
	}

	citations := payload.Citations
	if citations == nil {
		citations = []Citation{}
	}
	turn := Turn{
		Question:  question,
		Answer:    payload.Answer,
		Citations: citations,
		CreatedAt: s.now().UTC(),
	}

	saved, err := s.sessions.SaveSession(ctx, appendTurn(session, turn, s.cfg.TitleLength))
	if err != nil {
		return committedTurn{}, fmt.Errorf("save session: %w", err)
	}
	return committedTurn{turn: turn, session: saved}, nil
}

// appendTurn returns a copy of session with turn appended. The title is derived
// from the question only when the history is empty.
func appendTurn(session Session, turn Turn, titleLength int) Session {
	if len(session.History) == 0 {
		session.Title = DeriveTitle(turn.Question, titleLength)
	}
	history := make([]Turn, len(session.History), len(session.History)+1)
	copy(history, session.History)
	session.History = append(history, turn)
	return session
}

// DeriveTitle keeps the first limit runes of the question and marks the cut
// with an ellipsis.
func DeriveTitle(question string, limit int) string {
	question = strings.TrimSpace(question)
	if limit <= 0 {
		limit = defaultTitleLength
	}
	runes := []rune(question)
	if len(runes) <= limit {
		return question
	}
	return strings.TrimSpace(string(runes[:limit])) + titleEllipsis
}
