package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/fabfab/querry/llm"
)

type stubDocuments struct {
	docs []Document
	err  error
}

func (s *stubDocuments) ListCompletedDocuments(ctx context.Context, ownerID string) ([]Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		if doc.OwnerID == ownerID && doc.Status == StatusCompleted {
			out = append(out, doc)
		}
	}
	return out, nil
}

var _ DocumentRepository = (*stubDocuments)(nil)

// memorySessions mimics the revision check of the Postgres store.
type memorySessions struct {
	mu         sync.Mutex
	sessions   map[string]Session
	saves      int
	beforeSave func(s *memorySessions)
}

func newMemorySessions(sessions ...Session) *memorySessions {
	m := &memorySessions{sessions: make(map[string]Session)}
	for _, session := range sessions {
		m.sessions[session.ID] = session
	}
	return m
}

func (m *memorySessions) CreateSession(ctx context.Context, ownerID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := Session{
		ID:        "session-" + time.Now().Format("150405.000000000"),
		OwnerID:   ownerID,
		Title:     DefaultSessionTitle,
		History:   []Turn{},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.sessions[session.ID] = session
	return session, nil
}

func (m *memorySessions) GetSession(ctx context.Context, sessionID, ownerID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if session.OwnerID != ownerID {
		return Session{}, ErrUnauthorized
	}
	return cloneSession(session), nil
}

func (m *memorySessions) ListSessions(ctx context.Context, ownerID string) ([]SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SessionSummary
	for _, session := range m.sessions {
		if session.OwnerID == ownerID {
			out = append(out, SessionSummary{ID: session.ID, Title: session.Title, UpdatedAt: session.UpdatedAt})
		}
	}
	return out, nil
}

func (m *memorySessions) SaveSession(ctx context.Context, session Session) (Session, error) {
	if m.beforeSave != nil {
		m.beforeSave(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[session.ID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if stored.Revision != session.Revision {
		return Session{}, ErrPersistenceConflict
	}
	session.Revision++
	session.UpdatedAt = time.Now()
	m.sessions[session.ID] = cloneSession(session)
	m.saves++
	return session, nil
}

func (m *memorySessions) get(id string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSession(m.sessions[id])
}

func cloneSession(session Session) Session {
	history := make([]Turn, len(session.History))
	copy(history, session.History)
	session.History = history
	return session
}

var _ SessionStore = (*memorySessions)(nil)

type stubLLM struct {
	mu       sync.Mutex
	answer   string
	err      error
	requests []llm.Request
	hook     func(ctx context.Context)
}

func (s *stubLLM) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return llm.Response{Content: s.answer, Model: req.Model, FinishReason: "stop"}, nil
}

func (s *stubLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubLLM) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return ""
	}
	msgs := s.requests[len(s.requests)-1].Messages
	return msgs[len(msgs)-1].Content
}

var _ llm.Client = (*stubLLM)(nil)

type noopLocker struct{}

func (noopLocker) Lock(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

type recordingCitations struct {
	mu    sync.Mutex
	calls [][]Citation
	err   error
}

func (r *recordingCitations) RecordCitations(ctx context.Context, session Session, turnIndex int, citations []Citation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, citations)
	return r.err
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}
