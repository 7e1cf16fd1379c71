// Package llm wraps the chat completion service behind a small client
// interface so exchanges can be tested without a live endpoint.
package llm

import (
	"context"
	"fmt"
)

const DefaultModel = "gpt-4-turbo-preview"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a completion request. Name optionally carries
// the sanitized speaker name for multi-user conversations.
type Message struct {
	Role    string
	Name    string
	Content string
}

// Request carries a full completion request: a system prompt followed by
// the ordered turn sequence.
type Request struct {
	Model    string
	Messages []Message
}

// Response holds the single completion text.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Client issues one completion per exchange.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Config holds completion client configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewClient builds the OpenAI-backed client.
func NewClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("completion api key is required")
	}
	return newOpenAIClient(cfg)
}
