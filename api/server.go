// Package api serves the HTTP surface: auth, documents and chat sessions.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fabfab/querry/auth"
	"github.com/fabfab/querry/chat"
	"github.com/fabfab/querry/config"
	"github.com/fabfab/querry/knowledge"
)

type AuthService interface {
	Register(ctx context.Context, username, email, password string) (auth.Token, error)
	Login(ctx context.Context, email, password string) (auth.Token, error)
}

type DocumentService interface {
	Upload(ctx context.Context, ownerID, filename string, data []byte) (chat.Document, error)
	List(ctx context.Context, ownerID string) ([]chat.Document, error)
	Delete(ctx context.Context, id, ownerID string) error
}

type ChatService interface {
	CreateSession(ctx context.Context, ownerID string) (chat.Session, error)
	ListSessions(ctx context.Context, ownerID string) ([]chat.SessionSummary, error)
	GetSession(ctx context.Context, sessionID, ownerID string) (chat.Session, error)
	SubmitTurn(ctx context.Context, req chat.TurnRequest) (chat.TurnResult, error)
}

// CitationInsights is optional; without it the cited documents route is not registered.
type CitationInsights interface {
	MostCited(ctx context.Context, ownerID string, limit int) ([]knowledge.CitedDocument, error)
}

type Deps struct {
	Auth      AuthService
	Documents DocumentService
	Chat      ChatService
	Insights  CitationInsights
	Gatherer  prometheus.Gatherer
}

// Server exposes the querry HTTP API.
type Server struct {
	cfg    config.Config
	logger *slog.Logger
	deps   Deps
	echo   *echo.Echo
}

const multipartOverhead = 1 << 20

type messageResponse struct {
	Message string `json:"message"`
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validationMessage(err))
	}
	return nil
}

// New constructs a Server for the provided configuration and services.
func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "api")),
		deps:   deps,
	}
	s.echo = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			s.logger.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			return nil
		},
	}))
	e.Use(auth.JWTMiddleware(s.cfg.JWTSecret, func(c echo.Context) bool {
		path := c.Request().URL.Path
		return path == "/healthz" || path == "/metrics" || strings.HasPrefix(path, "/api/auth/")
	}))

	e.GET("/healthz", s.handleHealth)
	gatherer := s.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := e.Group("/api")
	if s.deps.Auth != nil {
		api.POST("/auth/register", s.handleRegister)
		api.POST("/auth/login", s.handleLogin)
	}
	if s.deps.Documents != nil {
		// multipart framing needs headroom above the file size limit
		limit := strconv.FormatInt(s.uploadLimit()+multipartOverhead, 10)
		api.POST("/documents", s.handleUpload, middleware.BodyLimit(limit+"B"))
		api.GET("/documents", s.handleListDocuments)
		api.DELETE("/documents/:id", s.handleDeleteDocument)
	}
	if s.deps.Insights != nil {
		api.GET("/documents/cited", s.handleCitedDocuments)
	}
	if s.deps.Chat != nil {
		api.POST("/chats", s.handleCreateChat)
		api.GET("/chats", s.handleListChats)
		api.GET("/chats/:id", s.handleGetChat)
		api.POST("/chats/:id/message", s.handleMessage)
	}
	return e
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, messageResponse{Message: "ok"})
}

// bindAndValidate decodes the request body into dst and runs struct validation.
func bindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(dst)
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, strings.ToLower(fe.Field())+" "+describeTag(fe))
	}
	return strings.Join(parts, "; ")
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}
