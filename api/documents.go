package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fabfab/querry/auth"
	"github.com/fabfab/querry/chat"
	"github.com/fabfab/querry/ingestion"
)

const (
	defaultUploadLimit = 20 << 20
	defaultCitedLimit  = 10
)

type documentResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type uploadResponse struct {
	DocID  string `json:"docId"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type citedDocumentResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Cites int64  `json:"cites"`
}

func (s *Server) uploadLimit() int64 {
	if s.cfg.UploadMaxBytes > 0 {
		return s.cfg.UploadMaxBytes
	}
	return defaultUploadLimit
}

func (s *Server) handleUpload(c echo.Context) error {
	ownerID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}

	header, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}
	file, err := header.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.uploadLimit()+1))
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.uploadLimit() {
		return ingestion.ErrUploadTooLarge
	}

	doc, err := s.deps.Documents.Upload(c.Request().Context(), ownerID, header.Filename, data)
	if err != nil {
		if doc.ID != "" && doc.Status == chat.StatusFailed {
			return c.JSON(http.StatusUnprocessableEntity, uploadResponse{
				DocID:  doc.ID,
				Title:  doc.Title,
				Status: string(doc.Status),
				Error:  doc.Error,
			})
		}
		return err
	}
	return c.JSON(http.StatusCreated, uploadResponse{DocID: doc.ID, Title: doc.Title, Status: string(doc.Status)})
}

func (s *Server) handleListDocuments(c echo.Context) error {
	ownerID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	docs, err := s.deps.Documents.List(c.Request().Context(), ownerID)
	if err != nil {
		return err
	}
	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, documentResponse{
			ID:        doc.ID,
			Title:     doc.Title,
			Status:    string(doc.Status),
			Error:     doc.Error,
			CreatedAt: doc.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	ownerID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	if err := s.deps.Documents.Delete(c.Request().Context(), c.Param("id"), ownerID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "document deleted"})
}

func (s *Server) handleCitedDocuments(c echo.Context) error {
	ownerID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	limit := defaultCitedLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, convErr := strconv.Atoi(raw)
		if convErr != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}
	cited, err := s.deps.Insights.MostCited(c.Request().Context(), ownerID, limit)
	if err != nil {
		return err
	}
	out := make([]citedDocumentResponse, 0, len(cited))
	for _, doc := range cited {
		out = append(out, citedDocumentResponse{ID: doc.ID, Title: doc.Title, Cites: doc.Count})
	}
	return c.JSON(http.StatusOK, map[string]any{"documents": out})
}
