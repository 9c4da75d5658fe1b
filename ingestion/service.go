package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fabfab/querry/chat"
)

const defaultMaxUploadBytes = 20 << 20

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrEmptyUpload       = errors.New("uploaded file is empty")
	ErrUploadTooLarge    = errors.New("uploaded file exceeds the size limit")
)

// GraphSync mirrors document lifecycle into the knowledge graph.
type GraphSync interface {
	SyncDocument(ctx context.Context, doc chat.Document) error
	RemoveDocument(ctx context.Context, id string) error
}

type Service struct {
	store    DocumentStore
	graph    GraphSync
	logger   *slog.Logger
	maxBytes int64
}

func NewService(store DocumentStore, logger *slog.Logger, maxBytes int64) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return &Service{
		store:    store,
		logger:   logger.With(slog.String("service", "ingestion")),
		maxBytes: maxBytes,
	}
}

func (s *Service) SetGraph(graph GraphSync) {
	s.graph = graph
}

// Upload stores a document as pending, extracts its text and moves it to
// completed or failed. An extraction failure is recorded on the document and
// returned with it; the caller still gets the document id.
func (s *Service) Upload(ctx context.Context, ownerID, filename string, data []byte) (chat.Document, error) {
	if s.store == nil {
		return chat.Document{}, fmt.Errorf("document store is not configured")
	}
	title := filepath.Base(strings.TrimSpace(filename))
	if title == "" || title == "." || title == "/" {
		return chat.Document{}, fmt.Errorf("file name is required")
	}
	if len(data) == 0 {
		return chat.Document{}, ErrEmptyUpload
	}
	if int64(len(data)) > s.maxBytes {
		return chat.Document{}, ErrUploadTooLarge
	}
	extractor, ok := extractorFor(DetectFormat(title, data))
	if !ok {
		return chat.Document{}, fmt.Errorf("%w: %q (accepted: %s)", ErrUnsupportedFormat, filepath.Ext(title), strings.Join(SupportedExtensions(), ", "))
	}

	doc, err := s.store.CreatePending(ctx, ownerID, title)
	if err != nil {
		return chat.Document{}, fmt.Errorf("create document: %w", err)
	}
	logger := s.logger.With(slog.String("document_id", doc.ID), slog.String("owner_id", ownerID))

	content, extractErr := extractor.Extract(ctx, data)
	if extractErr == nil && strings.TrimSpace(content) == "" {
		extractErr = fmt.Errorf("no text could be extracted")
	}
	if extractErr != nil {
		logger.Warn("document extraction failed", slog.String("title", title), slog.Any("error", extractErr))
		if err := s.store.MarkFailed(ctx, doc.ID, extractErr.Error()); err != nil {
			return doc, fmt.Errorf("mark document failed: %w", err)
		}
		doc.Status = chat.StatusFailed
		doc.Error = extractErr.Error()
		return doc, fmt.Errorf("extract document: %w", extractErr)
	}

	if err := s.store.MarkCompleted(ctx, doc.ID, content); err != nil {
		return doc, fmt.Errorf("mark document completed: %w", err)
	}
	doc.Status = chat.StatusCompleted
	doc.Content = content
	logger.Info("document ingested", slog.String("title", title), slog.Int("characters", len([]rune(content))))

	if s.graph != nil {
		if err := s.graph.SyncDocument(ctx, doc); err != nil {
			logger.Warn("sync knowledge graph", slog.Any("error", err))
		}
	}
	return doc, nil
}

// IngestFile reads a file from disk and uploads it for ownerID.
func (s *Service) IngestFile(ctx context.Context, ownerID, path string) (chat.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return chat.Document{}, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > s.maxBytes {
		return chat.Document{}, ErrUploadTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return chat.Document{}, fmt.Errorf("read file: %w", err)
	}
	return s.Upload(ctx, ownerID, filepath.Base(path), data)
}

func (s *Service) List(ctx context.Context, ownerID string) ([]chat.Document, error) {
	docs, err := s.store.ListDocuments(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (s *Service) Delete(ctx context.Context, id, ownerID string) error {
	if err := s.store.DeleteDocument(ctx, id, ownerID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if s.graph != nil {
		if err := s.graph.RemoveDocument(ctx, id); err != nil {
			s.logger.Warn("remove document from knowledge graph", slog.String("document_id", id), slog.Any("error", err))
		}
	}
	return nil
}
