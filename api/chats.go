package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fabfab/querry/auth"
	"github.com/fabfab/querry/chat"
)

type messageRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
}

type turnResponse struct {
	Answer    string          `json:"answer"`
	Citations []chat.Citation `json:"citations"`
	Title     string          `json:"title"`
	Degraded  bool            `json:"degraded"`
}

type sessionResponse struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	History   []chat.Turn `json:"history"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type sessionSummaryResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toSessionResponse(session chat.Session) sessionResponse {
	history := session.History
	if history == nil {
		history = []chat.Turn{}
	}
	return sessionResponse{
		ID:        session.ID,
		Title:     session.Title,
		History:   history,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}
}

func (s *Server) handleCreateChat(c echo.Context) error {
	ownerID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	session, err := s.deps.Chat.CreateSession(c.Request().Context(), ownerID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toSessionResponse(session))
}

func (s *Server) handleListChats(c echo.Context) error {
	ownerID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	sessions, err := s.deps.Chat.ListSessions(c.Request().Context(), ownerID)
	if err != nil {
		return err
	}
	out := make([]sessionSummaryResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, sessionSummaryResponse{ID: session.ID, Title: session.Title, UpdatedAt: session.UpdatedAt})
	}
	return c.JSON(http.StatusOK, map[string]any{"chats": out})
}

func (s *Server) handleGetChat(c echo.Context) error {
	ownerID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	session, err := s.deps.Chat.GetSession(c.Request().Context(), c.Param("id"), ownerID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSessionResponse(session))
}

func (s *Server) handleMessage(c echo.Context) error {
	ownerID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	var req messageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := s.deps.Chat.SubmitTurn(c.Request().Context(), chat.TurnRequest{
		SessionID: c.Param("id"),
		OwnerID:   ownerID,
		Question:  req.Question,
	})
	if err != nil {
		return err
	}

	citations := result.Turn.Citations
	if citations == nil {
		citations = []chat.Citation{}
	}
	return c.JSON(http.StatusOK, turnResponse{
		Answer:    result.Turn.Answer,
		Citations: citations,
		Title:     result.Title,
		Degraded:  result.Degraded,
	})
}
