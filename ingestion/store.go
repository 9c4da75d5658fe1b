package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabfab/querry/chat"
)

// DocumentStore is the write side of the document library.
type DocumentStore interface {
	chat.DocumentRepository
	CreatePending(ctx context.Context, ownerID, title string) (chat.Document, error)
	MarkCompleted(ctx context.Context, id, content string) error
	MarkFailed(ctx context.Context, id, reason string) error
	ListDocuments(ctx context.Context, ownerID string) ([]chat.Document, error)
	DeleteDocument(ctx context.Context, id, ownerID string) error
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreatePending(ctx context.Context, ownerID, title string) (chat.Document, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return chat.Document{}, fmt.Errorf("invalid owner id: %w", err)
	}

	doc := chat.Document{
		ID:      uuid.NewString(),
		OwnerID: owner.String(),
		Title:   title,
		Status:  chat.StatusPending,
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO documents (id, owner_id, title, status, created_at)
		VALUES ($1, $2, $3, 'pending', NOW())
		RETURNING created_at
	`, doc.ID, owner, title).Scan(&doc.CreatedAt)
	if err != nil {
		return chat.Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

// MarkCompleted stores the extracted text. Only pending documents transition,
// so completed content is never rewritten.
func (s *PostgresStore) MarkCompleted(ctx context.Context, id, content string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET content = $2, status = 'completed', error = ''
		WHERE id = $1 AND status = 'pending'
	`, id, content)
	if err != nil {
		return fmt.Errorf("complete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET status = 'failed', error = $2
		WHERE id = $1 AND status = 'pending'
	`, id, reason)
	if err != nil {
		return fmt.Errorf("fail document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrNotFound
	}
	return nil
}

// ListCompletedDocuments returns the owner's grounding set, oldest first.
func (s *PostgresStore) ListCompletedDocuments(ctx context.Context, ownerID string) ([]chat.Document, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, fmt.Errorf("invalid owner id: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, title, content, status, error, created_at
		FROM documents
		WHERE owner_id = $1 AND status = 'completed'
		ORDER BY created_at ASC, id ASC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("query completed documents: %w", err)
	}
	return collectDocuments(rows)
}

// ListDocuments returns every document of the owner, newest first.
func (s *PostgresStore) ListDocuments(ctx context.Context, ownerID string) ([]chat.Document, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, fmt.Errorf("invalid owner id: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, title, content, status, error, created_at
		FROM documents
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	return collectDocuments(rows)
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id, ownerID string) error {
	docID, err := uuid.Parse(id)
	if err != nil {
		return chat.ErrNotFound
	}
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return chat.ErrNotFound
	}

	var deleted uuid.UUID
	err = s.pool.QueryRow(ctx, `
		DELETE FROM documents WHERE id = $1 AND owner_id = $2 RETURNING id
	`, docID, owner).Scan(&deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.ErrNotFound
		}
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func collectDocuments(rows pgx.Rows) ([]chat.Document, error) {
	defer rows.Close()

	docs := make([]chat.Document, 0)
	for rows.Next() {
		var (
			doc    chat.Document
			id     uuid.UUID
			owner  uuid.UUID
			status string
		)
		if err := rows.Scan(&id, &owner, &doc.Title, &doc.Content, &status, &doc.Error, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.ID = id.String()
		doc.OwnerID = owner.String()
		doc.Status = chat.DocumentStatus(status)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

var _ DocumentStore = (*PostgresStore)(nil)
