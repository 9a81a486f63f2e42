// Package llm abstracts the chat-completion endpoints quench samples
// from and judges with. Training has its own client in internal/trainer;
// this package only covers inference.
package llm

import (
	"context"

	"github.com/efebarandurmaz/quench/internal/chat"
)

// Provider is the interface all inference backends must implement.
type Provider interface {
	// Complete sends a conversation and returns a completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Embed returns embedding vectors for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "openai", "vllm").
	Name() string
}

// Prompt is the full input to a completion call.
type Prompt struct {
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Messages     chat.Conversation `json:"messages"`
}

// RequestOptions tunes a single completion call. Nil fields fall back
// to provider defaults.
type RequestOptions struct {
	MaxTokens   *int
	Temperature *float64
	TopP        *float64
	StopSeqs    []string
}

// Response wraps a completion result.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
}
