package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fabfab/querry/auth"
	"github.com/fabfab/querry/chat"
	"github.com/fabfab/querry/ingestion"
)

type errorResponse struct {
	Error string `json:"error"`
}

// toHTTPError maps domain errors onto status codes. Unknown errors become 500
// and their text is not sent to the client.
func toHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, chat.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, "resource belongs to another user")
	case errors.Is(err, chat.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, chat.ErrEmptyQuestion):
		return echo.NewHTTPError(http.StatusBadRequest, chat.ErrEmptyQuestion.Error())
	case errors.Is(err, chat.ErrGenerationParse):
		return echo.NewHTTPError(http.StatusBadGateway, "the model returned an invalid response, please retry")
	case errors.Is(err, chat.ErrGenerationFailed):
		return echo.NewHTTPError(http.StatusBadGateway, "the model is unavailable, please retry")
	case errors.Is(err, chat.ErrPersistenceConflict):
		return echo.NewHTTPError(http.StatusConflict, "the conversation changed while answering, please retry")
	case errors.Is(err, auth.ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, auth.ErrEmailTaken.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
	case errors.Is(err, ingestion.ErrUnsupportedFormat), errors.Is(err, ingestion.ErrEmptyUpload):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ingestion.ErrUploadTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, ingestion.ErrUploadTooLarge.Error())
	case errors.Is(err, context.Canceled):
		// client went away; the status is never read
		return echo.NewHTTPError(499, "request cancelled")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he := toHTTPError(err)
	if he.Code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("method", c.Request().Method),
			slog.String("path", c.Path()),
			slog.Any("error", err))
	}

	message, ok := he.Message.(string)
	if !ok {
		message = http.StatusText(he.Code)
	}
	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(he.Code)
	} else {
		writeErr = c.JSON(he.Code, errorResponse{Error: message})
	}
	if writeErr != nil {
		s.logger.Warn("write error response", slog.Any("error", writeErr))
	}
}
