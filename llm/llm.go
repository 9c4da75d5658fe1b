// Package llm is the engine's only network boundary: one non-streaming
// chat completion per call, against Ollama or an OpenAI-compatible API.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/fabfab/querry/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FinishLength is reported when the provider stopped at its output token limit.
const FinishLength = "length"

type Message struct {
	Role    string
	Content string
}

// Request describes one completion. An empty Model falls back to the client's
// configured model. JSON asks the provider to constrain output to a JSON object.
type Request struct {
	Messages []Message
	Model    string
	JSON     bool
}

// Response carries the raw completion text as produced by the model, untouched.
type Response struct {
	Content          string
	Model            string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// Truncated reports whether the model ran out of output tokens.
func (r Response) Truncated() bool {
	return r.FinishReason == FinishLength
}

// Client is implemented by every provider. Implementations never retry and
// never cache: two identical requests are two model calls.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

var ErrNoCompletion = errors.New("provider returned no completion")

// APIError is a provider rejection (quota, auth, unknown model, bad request).
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// NewClient builds the provider selected by LLM_PROVIDER.
func NewClient(cfg config.Config) (Client, error) {
	if cfg.LLM.Model == "" {
		return nil, fmt.Errorf("llm model is not configured")
	}

	switch cfg.LLM.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(cfg.OllamaHost, cfg.LLM.Model), nil
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLM.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.LLM.Provider)
	}
}

func pickModel(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}
