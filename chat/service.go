package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fabfab/querry/llm"
)

const (
	defaultHistoryWindow = 3
	defaultTitleLength   = 30

	// NoContextAnswer is returned instead of calling the model when the owner has no documents.
	NoContextAnswer = "Please upload a document first."
)

type Config struct {
	HistoryWindow int
	ContextBudget int
	TitleLength   int
	Model         string
}

type Service struct {
	documents DocumentRepository
	sessions  SessionStore
	llm       llm.Client
	logger    *slog.Logger
	cfg       Config

	locker    Locker
	citations CitationRecorder
	metrics   *Metrics
	tokens    TokenCounter
	now       func() time.Time
}

func NewService(documents DocumentRepository, sessions SessionStore, llmClient llm.Client, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	if cfg.TitleLength <= 0 {
		cfg.TitleLength = defaultTitleLength
	}

	return &Service{
		documents: documents,
		sessions:  sessions,
		llm:       llmClient,
		logger:    logger.With(slog.String("service", "chat")),
		cfg:       cfg,
		locker:    NewLocalLocker(),
		now:       time.Now,
	}
}

func (s *Service) SetLocker(locker Locker) {
	if locker != nil {
		s.locker = locker
	}
}

func (s *Service) SetCitationRecorder(recorder CitationRecorder) {
	s.citations = recorder
}

func (s *Service) SetMetrics(metrics *Metrics) {
	s.metrics = metrics
}

func (s *Service) SetTokenCounter(counter TokenCounter) {
	s.tokens = counter
}

func (s *Service) CreateSession(ctx context.Context, ownerID string) (Session, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Session{}, ErrUnauthorized
	}
	session, err := s.sessions.CreateSession(ctx, ownerID)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (s *Service) ListSessions(ctx context.Context, ownerID string) ([]SessionSummary, error) {
	sessions, err := s.sessions.ListSessions(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID, ownerID string) (Session, error) {
	session, err := s.sessions.GetSession(ctx, sessionID, ownerID)
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

// SubmitTurn answers one question in a session. Generation and parse failures
// are returned as ErrGenerationFailed / ErrGenerationParse and leave the session
// untouched. When the owner has no completed documents the result is a fixed
// degraded answer and nothing is persisted.
func (s *Service) SubmitTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return TurnResult{}, ErrEmptyQuestion
	}
	if s.documents == nil {
		return TurnResult{}, fmt.Errorf("document repository is not configured")
	}
	if s.sessions == nil {
		return TurnResult{}, fmt.Errorf("session store is not configured")
	}
	if s.llm == nil {
		return TurnResult{}, fmt.Errorf("llm client is not configured")
	}

	logger := s.logger.With(slog.String("session_id", req.SessionID), slog.String("owner_id", req.OwnerID))

	session, err := s.sessions.GetSession(ctx, req.SessionID, req.OwnerID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load session: %w", err)
	}

	docs, err := s.documents.ListCompletedDocuments(ctx, req.OwnerID)
	if err != nil {
		s.metrics.observeTurn(outcomeError)
		return TurnResult{}, fmt.Errorf("list documents: %w", err)
	}

	grounding, err := AssembleContext(docs, s.cfg.ContextBudget)
	if errors.Is(err, ErrNoContext) {
		logger.Info("no documents for owner, returning degraded answer")
		s.metrics.observeTurn(outcomeDegraded)
		return TurnResult{
			Turn: Turn{
				Question:  question,
				Answer:    NoContextAnswer,
				Citations: []Citation{},
				CreatedAt: s.now().UTC(),
			},
			Title:    session.Title,
			Degraded: true,
		}, nil
	}
	if err != nil {
		return TurnResult{}, fmt.Errorf("assemble context: %w", err)
	}
	if s.tokens != nil {
		grounding.EstimatedTokens = s.tokens.CountTokens(grounding.Text)
	}
	if grounding.Truncated {
		s.metrics.observeTruncation()
		logger.Warn("grounding context truncated to budget",
			slog.Int("budget", s.cfg.ContextBudget),
			slog.Int("documents", grounding.Used))
	}

	window := WindowHistory(session.History, s.cfg.HistoryWindow)
	prompt := ComposePrompt(grounding.Text, window, question)

	model := req.Model
	if model == "" {
		model = s.cfg.Model
	}

	started := s.now()
	completion, err := s.llm.Generate(ctx, llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Model:    model,
		JSON:     true,
	})
	s.metrics.observeGeneration(s.now().Sub(started))
	if err != nil {
		if ctx.Err() != nil {
			s.metrics.observeTurn(outcomeCancelled)
		} else {
			s.metrics.observeTurn(outcomeGenerationFailed)
		}
		logger.Error("llm generate failed", slog.Any("error", err))
		return TurnResult{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	logger.Debug("model responded",
		slog.String("model", completion.Model),
		slog.String("finish_reason", completion.FinishReason),
		slog.Int("prompt_tokens", completion.PromptTokens),
		slog.Int("completion_tokens", completion.CompletionTokens))
	if completion.Truncated() {
		logger.Warn("model output hit the token limit")
	}

	payload, err := ParseResponse(completion.Content, grounding.Documents)
	if err != nil {
		s.metrics.observeTurn(outcomeParseError)
		logger.Warn("model response rejected", slog.String("reason", describeParseFailure(err)))
		return TurnResult{}, fmt.Errorf("validate model response: %w", err)
	}

	if err := ctx.Err(); err != nil {
		s.metrics.observeTurn(outcomeCancelled)
		logger.Info("request abandoned before commit, discarding answer")
		return TurnResult{}, err
	}

	committed, err := s.commitTurn(ctx, req.SessionID, req.OwnerID, question, payload)
	if err != nil {
		if errors.Is(err, ErrPersistenceConflict) {
			s.metrics.observeTurn(outcomeConflict)
		} else {
			s.metrics.observeTurn(outcomeError)
		}
		return TurnResult{}, err
	}
	s.metrics.observeTurn(outcomeCommitted)

	logger.Info("turn committed",
		slog.Int("documents", grounding.Used),
		slog.Int("grounding_tokens", grounding.EstimatedTokens),
		slog.Int("citations", len(committed.turn.Citations)),
		slog.Int64("revision", committed.session.Revision))

	s.recordCitations(ctx, committed)

	return TurnResult{Turn: committed.turn, Title: committed.session.Title}, nil
}

func (s *Service) recordCitations(ctx context.Context, committed committedTurn) {
	if s.citations == nil || len(committed.turn.Citations) == 0 {
		return
	}
	turnIndex := len(committed.session.History) - 1
	if err := s.citations.RecordCitations(ctx, committed.session, turnIndex, committed.turn.Citations); err != nil {
		s.logger.Warn("record citations", slog.String("session_id", committed.session.ID), slog.Any("error", err))
	}
}
