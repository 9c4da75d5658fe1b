package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	providerOllama    = "ollama"
	defaultOllamaHost = "http://localhost:11434"
	maxErrorBody      = 4 << 10
)

// OllamaClient calls /api/chat with streaming disabled. There is no client
// timeout; the caller's context bounds the request.
type OllamaClient struct {
	endpoint string
	model    string
	http     *http.Client
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error"`
}

func NewOllamaClient(host, model string) *OllamaClient {
	host = strings.TrimRight(host, "/")
	if host == "" {
		host = defaultOllamaHost
	}
	return &OllamaClient{endpoint: host + "/api/chat", model: model, http: &http.Client{}}
}

func (c *OllamaClient) Generate(ctx context.Context, r Request) (Response, error) {
	payload := ollamaRequest{
		Model:    pickModel(r.Model, c.model),
		Messages: make([]ollamaMessage, 0, len(r.Messages)),
	}
	for _, msg := range r.Messages {
		payload.Messages = append(payload.Messages, ollamaMessage(msg))
	}
	if r.JSON {
		payload.Format = "json"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("encode ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("call ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return Response{}, ollamaStatusError(resp)
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode ollama response: %w", err)
	}
	if out.Error != "" {
		return Response{}, &APIError{Provider: providerOllama, StatusCode: resp.StatusCode, Message: out.Error}
	}
	if !out.Done {
		return Response{}, fmt.Errorf("%s chat: %w", providerOllama, ErrNoCompletion)
	}

	return Response{
		Content:          out.Message.Content,
		Model:            out.Model,
		FinishReason:     out.DoneReason,
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
	}, nil
}

// Ollama reports failures as {"error": "..."}; anything else is passed through raw.
func ollamaStatusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(data))

	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{Provider: providerOllama, StatusCode: resp.StatusCode, Message: msg}
}
