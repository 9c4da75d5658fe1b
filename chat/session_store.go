package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresSessionStore struct {
	pool *pgxpool.Pool
}

func NewPostgresSessionStore(pool *pgxpool.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

func (s *PostgresSessionStore) CreateSession(ctx context.Context, ownerID string) (Session, error) {
	if s.pool == nil {
		return Session{}, fmt.Errorf("postgres pool is nil")
	}
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return Session{}, fmt.Errorf("invalid owner id: %w", err)
	}

	session := Session{
		ID:      uuid.NewString(),
		OwnerID: owner.String(),
		Title:   DefaultSessionTitle,
		History: []Turn{},
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO chat_sessions (id, owner_id, title, history, revision, created_at, updated_at)
		VALUES ($1, $2, $3, '[]'::jsonb, 0, NOW(), NOW())
		RETURNING created_at, updated_at
	`, session.ID, owner, session.Title).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

func (s *PostgresSessionStore) GetSession(ctx context.Context, sessionID, ownerID string) (Session, error) {
	if s.pool == nil {
		return Session{}, fmt.Errorf("postgres pool is nil")
	}
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return Session{}, ErrNotFound
	}

	var (
		session Session
		owner   uuid.UUID
		history []byte
	)
	err = s.pool.QueryRow(ctx, `
		SELECT owner_id, title, history, revision, created_at, updated_at
		FROM chat_sessions
		WHERE id = $1
	`, id).Scan(&owner, &session.Title, &history, &session.Revision, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("query session: %w", err)
	}
	if owner.String() != ownerID {
		return Session{}, ErrUnauthorized
	}

	session.ID = id.String()
	session.OwnerID = owner.String()
	if err := json.Unmarshal(history, &session.History); err != nil {
		return Session{}, fmt.Errorf("decode session history: %w", err)
	}
	if session.History == nil {
		session.History = []Turn{}
	}
	return session, nil
}

func (s *PostgresSessionStore) ListSessions(ctx context.Context, ownerID string) ([]SessionSummary, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, fmt.Errorf("invalid owner id: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, updated_at
		FROM chat_sessions
		WHERE owner_id = $1
		ORDER BY updated_at DESC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	results := make([]SessionSummary, 0)
	for rows.Next() {
		var (
			item SessionSummary
			id   uuid.UUID
		)
		if scanErr := rows.Scan(&id, &item.Title, &item.UpdatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan session: %w", scanErr)
		}
		item.ID = id.String()
		results = append(results, item)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return results, nil
}

func (s *PostgresSessionStore) SaveSession(ctx context.Context, session Session) (Session, error) {
	if s.pool == nil {
		return Session{}, fmt.Errorf("postgres pool is nil")
	}
	id, err := uuid.Parse(session.ID)
	if err != nil {
		return Session{}, ErrNotFound
	}
	owner, err := uuid.Parse(session.OwnerID)
	if err != nil {
		return Session{}, ErrUnauthorized
	}

	history := session.History
	if history == nil {
		history = []Turn{}
	}
	payload, err := json.Marshal(history)
	if err != nil {
		return Session{}, fmt.Errorf("encode session history: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		UPDATE chat_sessions
		SET title = $3,
		    history = $4::jsonb,
		    revision = revision + 1,
		    updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND revision = $5
		RETURNING revision, updated_at
	`, id, owner, session.Title, payload, session.Revision).Scan(&session.Revision, &session.UpdatedAt)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Session{}, fmt.Errorf("update session: %w", err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM chat_sessions WHERE id = $1 AND owner_id = $2)
	`, id, owner).Scan(&exists); err != nil {
		return Session{}, fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return Session{}, ErrNotFound
	}
	return Session{}, ErrPersistenceConflict
}

var _ SessionStore = (*PostgresSessionStore)(nil)
