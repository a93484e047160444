// Package llm wraps the chat-completion provider behind a small client
// interface so generation code can run against a mock in tests.
package llm

import (
	"context"

	"github.com/heritagewhisper/keeper/internal/routing"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Request is a chat completion request.
type Request struct {
	Messages []Message `json:"messages"`

	// Model and effort as chosen by the router.
	Model  string         `json:"model"`
	Effort routing.Effort `json:"effort,omitempty"`

	MaxTokens int `json:"max_tokens,omitempty"`

	// WantJSON asks the provider for a JSON object response.
	WantJSON bool `json:"-"`
}

// Result is the response from a chat call.
type Result struct {
	Content          string `json:"content"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// Client is the chat interface generation code depends on.
type Client interface {
	Chat(ctx context.Context, req *Request) (*Result, error)
	Name() string
}

// SystemMessage builds a system turn.
func SystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage builds a user turn.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}
