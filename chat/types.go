package chat

import "time"

// DocumentStatus tracks text extraction of an uploaded document.
type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusCompleted DocumentStatus = "completed"
	StatusFailed    DocumentStatus = "failed"
)

const DefaultSessionTitle = "New Conversation"

type Document struct {
	ID        string
	OwnerID   string
	Title     string
	Content   string
	Status    DocumentStatus
	Error     string
	CreatedAt time.Time
}

// DocumentRef is the part of a document citations are resolved against.
type DocumentRef struct {
	ID    string
	Title string
}

type Citation struct {
	DocTitle   string `json:"docTitle"`
	Snippet    string `json:"snippet"`
	DocumentID string `json:"docId,omitempty"`
}

type Turn struct {
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Session is a conversation transcript. Revision increases by one on every
// successful save and guards against lost updates.
type Session struct {
	ID        string
	OwnerID   string
	Title     string
	History   []Turn
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID        string
	Title     string
	UpdatedAt time.Time
}

// HistoryEntry is one replayed exchange; citations are not replayed.
type HistoryEntry struct {
	Question string
	Answer   string
}

// Grounding is the assembled context blob sent to the model.
type Grounding struct {
	Text            string
	Documents       []DocumentRef
	Used            int
	Truncated       bool
	EstimatedTokens int
}

// TurnPayload is a validated model answer not yet committed.
type TurnPayload struct {
	Answer    string
	Citations []Citation
}

type TurnRequest struct {
	SessionID string
	OwnerID   string
	Question  string
	Model     string
}

type TurnResult struct {
	Turn     Turn
	Title    string
	Degraded bool
}
