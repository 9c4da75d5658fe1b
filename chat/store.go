package chat

import "context"

// DocumentRepository is the read side of the owner's document library.
type DocumentRepository interface {
	// ListCompletedDocuments returns the owner's documents whose extraction finished.
	ListCompletedDocuments(ctx context.Context, ownerID string) ([]Document, error)
}

// SessionStore persists conversation transcripts.
//
// GetSession returns ErrNotFound for unknown ids and ErrUnauthorized when the
// session belongs to someone else. SaveSession writes title and history only
// if the stored revision still equals session.Revision, otherwise it returns
// ErrPersistenceConflict; on success the returned session carries the new revision.
type SessionStore interface {
	CreateSession(ctx context.Context, ownerID string) (Session, error)
	GetSession(ctx context.Context, sessionID, ownerID string) (Session, error)
	ListSessions(ctx context.Context, ownerID string) ([]SessionSummary, error)
	SaveSession(ctx context.Context, session Session) (Session, error)
}

// CitationRecorder mirrors committed citations somewhere outside the transcript.
type CitationRecorder interface {
	RecordCitations(ctx context.Context, session Session, turnIndex int, citations []Citation) error
}
