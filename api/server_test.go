package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/querry/auth"
	"github.com/fabfab/querry/chat"
	"github.com/fabfab/querry/config"
	"github.com/fabfab/querry/knowledge"
)

const testSecret = "api-test-secret"

type stubAuth struct {
	registerErr error
	loginErr    error
}

func (s *stubAuth) Register(ctx context.Context, username, email, password string) (auth.Token, error) {
	if s.registerErr != nil {
		return auth.Token{}, s.registerErr
	}
	return auth.Token{Token: "tok", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *stubAuth) Login(ctx context.Context, email, password string) (auth.Token, error) {
	if s.loginErr != nil {
		return auth.Token{}, s.loginErr
	}
	return auth.Token{Token: "tok", UserID: "user-1"}, nil
}

type stubDocuments struct {
	uploaded  []string
	uploadDoc chat.Document
	uploadErr error
	docs      []chat.Document
	deleteErr error
}

func (s *stubDocuments) Upload(ctx context.Context, ownerID, filename string, data []byte) (chat.Document, error) {
	s.uploaded = append(s.uploaded, ownerID+":"+filename+":"+string(data))
	return s.uploadDoc, s.uploadErr
}

func (s *stubDocuments) List(ctx context.Context, ownerID string) ([]chat.Document, error) {
	return s.docs, nil
}

func (s *stubDocuments) Delete(ctx context.Context, id, ownerID string) error {
	return s.deleteErr
}

type stubChat struct {
	lastTurn chat.TurnRequest
	result   chat.TurnResult
	err      error
	session  chat.Session
}

func (s *stubChat) CreateSession(ctx context.Context, ownerID string) (chat.Session, error) {
	return chat.Session{ID: "s-new", OwnerID: ownerID, Title: chat.DefaultSessionTitle}, nil
}

func (s *stubChat) ListSessions(ctx context.Context, ownerID string) ([]chat.SessionSummary, error) {
	return []chat.SessionSummary{{ID: "s-1", Title: "Refunds"}}, nil
}

func (s *stubChat) GetSession(ctx context.Context, sessionID, ownerID string) (chat.Session, error) {
	if s.err != nil {
		return chat.Session{}, s.err
	}
	return s.session, nil
}

func (s *stubChat) SubmitTurn(ctx context.Context, req chat.TurnRequest) (chat.TurnResult, error) {
	s.lastTurn = req
	return s.result, s.err
}

type stubInsights struct{}

func (stubInsights) MostCited(ctx context.Context, ownerID string, limit int) ([]knowledge.CitedDocument, error) {
	return []knowledge.CitedDocument{{ID: "d1", Title: "Policy.pdf", Count: 3}}, nil
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	cfg := config.Config{JWTSecret: testSecret, UploadMaxBytes: 1024}
	return New(cfg, nil, deps)
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := auth.GenerateToken(userID, testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(t *testing.T, srv *Server, method, path, body, authz string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	reg := prometheus.NewRegistry()
	chat.NewMetrics(reg)
	srv := newTestServer(t, Deps{Gatherer: reg})

	rec := doJSON(t, srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "querry_generation_seconds")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t, Deps{Chat: &stubChat{}})

	rec := doJSON(t, srv, http.MethodGet, "/api/chats", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/chats", "", bearer(t, "user-1"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	authSvc := &stubAuth{}
	srv := newTestServer(t, Deps{Auth: authSvc})

	rec := doJSON(t, srv, http.MethodPost, "/api/auth/register", `{"username":"ada","email":"not-an-email","password":"longenough"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email must be a valid email")

	rec = doJSON(t, srv, http.MethodPost, "/api/auth/register", `{"username":"ada","email":"ada@example.com","password":"longenough"}`, "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token":"tok"`)

	authSvc.registerErr = auth.ErrEmailTaken
	rec = doJSON(t, srv, http.MethodPost, "/api/auth/register", `{"username":"ada","email":"ada@example.com","password":"longenough"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	authSvc.loginErr = auth.ErrInvalidCredentials
	rec = doJSON(t, srv, http.MethodPost, "/api/auth/login", `{"email":"ada@example.com","password":"nope"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMessageReturnsAnswerAndCitations(t *testing.T) {
	chatSvc := &stubChat{result: chat.TurnResult{
		Turn: chat.Turn{
			Question: "What is the refund window?",
			Answer:   "14 days",
			Citations: []chat.Citation{{
				DocTitle:   "Policy.pdf",
				Snippet:    "refunds are processed within 14 days",
				DocumentID: "doc-1",
			}},
		},
		Title: "What is the refund window?",
	}}
	srv := newTestServer(t, Deps{Chat: chatSvc})

	rec := doJSON(t, srv, http.MethodPost, "/api/chats/s-1/message", `{"question":"What is the refund window?"}`, bearer(t, "user-7"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Answer    string `json:"answer"`
		Degraded  bool   `json:"degraded"`
		Citations []struct {
			DocTitle string `json:"docTitle"`
			Snippet  string `json:"snippet"`
			DocID    string `json:"docId"`
		} `json:"citations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "14 days", body.Answer)
	assert.False(t, body.Degraded)
	require.Len(t, body.Citations, 1)
	assert.Equal(t, "Policy.pdf", body.Citations[0].DocTitle)
	assert.Equal(t, "doc-1", body.Citations[0].DocID)

	assert.Equal(t, chat.TurnRequest{SessionID: "s-1", OwnerID: "user-7", Question: "What is the refund window?"}, chatSvc.lastTurn)
}

func TestMessageDegradedHasEmptyCitations(t *testing.T) {
	chatSvc := &stubChat{result: chat.TurnResult{
		Turn:     chat.Turn{Answer: chat.NoContextAnswer},
		Degraded: true,
	}}
	srv := newTestServer(t, Deps{Chat: chatSvc})

	rec := doJSON(t, srv, http.MethodPost, "/api/chats/s-1/message", `{"question":"hi"}`, bearer(t, "user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"citations":[]`)
	assert.Contains(t, rec.Body.String(), `"degraded":true`)
}

func TestMessageErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("load session: %w", chat.ErrUnauthorized), http.StatusForbidden},
		{fmt.Errorf("load session: %w", chat.ErrNotFound), http.StatusNotFound},
		{chat.ErrEmptyQuestion, http.StatusBadRequest},
		{fmt.Errorf("%w: %w", chat.ErrGenerationFailed, errors.New("timeout")), http.StatusBadGateway},
		{fmt.Errorf("validate model response: %w", &chat.ParseError{Reason: "bad", Raw: "x"}), http.StatusBadGateway},
		{fmt.Errorf("save session: %w", chat.ErrPersistenceConflict), http.StatusConflict},
		{errors.New("database exploded"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			srv := newTestServer(t, Deps{Chat: &stubChat{err: tc.err}})
			rec := doJSON(t, srv, http.MethodPost, "/api/chats/s-1/message", `{"question":"q"}`, bearer(t, "user-1"))
			assert.Equal(t, tc.want, rec.Code)
			assert.NotContains(t, rec.Body.String(), "database exploded")
		})
	}
}

func TestMessageRequiresQuestion(t *testing.T) {
	chatSvc := &stubChat{}
	srv := newTestServer(t, Deps{Chat: chatSvc})

	rec := doJSON(t, srv, http.MethodPost, "/api/chats/s-1/message", `{"question":""}`, bearer(t, "user-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, chatSvc.lastTurn.SessionID)
}

func multipartUpload(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestUploadDocument(t *testing.T) {
	docs := &stubDocuments{uploadDoc: chat.Document{ID: "doc-1", Title: "Policy.txt", Status: chat.StatusCompleted}}
	srv := newTestServer(t, Deps{Documents: docs})

	body, contentType := multipartUpload(t, "file", "Policy.txt", []byte("refunds in 14 days"))
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearer(t, "user-1"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"docId":"doc-1"`)
	assert.Equal(t, []string{"user-1:Policy.txt:refunds in 14 days"}, docs.uploaded)
}

func TestUploadFailedExtraction(t *testing.T) {
	docs := &stubDocuments{
		uploadDoc: chat.Document{ID: "doc-2", Title: "broken.pdf", Status: chat.StatusFailed, Error: "open pdf: not a PDF file"},
		uploadErr: errors.New("extract document: open pdf: not a PDF file"),
	}
	srv := newTestServer(t, Deps{Documents: docs})

	body, contentType := multipartUpload(t, "file", "broken.pdf", []byte("garbage"))
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearer(t, "user-1"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"failed"`)
}

func TestUploadRejectsOversizedAndMissingFile(t *testing.T) {
	docs := &stubDocuments{}
	srv := newTestServer(t, Deps{Documents: docs})

	body, contentType := multipartUpload(t, "file", "big.txt", bytes.Repeat([]byte("a"), 2048))
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearer(t, "user-1"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	body, contentType = multipartUpload(t, "other", "a.txt", []byte("a"))
	req = httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearer(t, "user-1"))
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, docs.uploaded)
}

func TestDocumentListDeleteAndCited(t *testing.T) {
	docs := &stubDocuments{docs: []chat.Document{{ID: "d1", Title: "Policy.pdf", Status: chat.StatusCompleted}}}
	srv := newTestServer(t, Deps{Documents: docs, Insights: stubInsights{}})
	token := bearer(t, "user-1")

	rec := doJSON(t, srv, http.MethodGet, "/api/documents", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Policy.pdf"`)

	rec = doJSON(t, srv, http.MethodGet, "/api/documents/cited?limit=5", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cites":3`)

	rec = doJSON(t, srv, http.MethodDelete, "/api/documents/d1", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	docs.deleteErr = fmt.Errorf("delete document: %w", chat.ErrNotFound)
	rec = doJSON(t, srv, http.MethodDelete, "/api/documents/d1", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetChatHidesOtherOwners(t *testing.T) {
	srv := newTestServer(t, Deps{Chat: &stubChat{err: fmt.Errorf("load session: %w", chat.ErrUnauthorized)}})
	rec := doJSON(t, srv, http.MethodGet, "/api/chats/s-1", "", bearer(t, "user-2"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
