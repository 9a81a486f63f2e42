// Package judge runs pairwise model comparison: two models answer the
// same prompts and an LLM judge picks a winner per prompt. Each pair is
// judged in both orders so position bias cancels out.
package judge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/efebarandurmaz/quench/internal/chat"
	"github.com/efebarandurmaz/quench/internal/llm"
)

const judgeSystemPrompt = `You are an impartial judge comparing two AI assistant responses to the same conversation. Pick the response that is more helpful, accurate and appropriate. Respond with JSON only: {"winner": "A" | "B" | "tie", "reason": "..."}`

// Winner is a single judgment outcome.
type Winner string

const (
	WinnerA   Winner = "A"
	WinnerB   Winner = "B"
	WinnerTie Winner = "tie"
)

// Judge compares candidate responses using an LLM.
type Judge struct {
	provider llm.Provider
	opts     *llm.RequestOptions
	tmpl     chat.Template
}

// New creates a judge backed by the given provider. The judge samples
// at temperature zero: a verdict should not depend on the dice.
func New(provider llm.Provider) *Judge {
	zero := 0.0
	maxTokens := 512
	return &Judge{
		provider: provider,
		opts:     &llm.RequestOptions{Temperature: &zero, MaxTokens: &maxTokens},
		tmpl:     &chat.Transcript{},
	}
}

// Compare judges responses a and b against prompt, in both orders. When
// the two orderings disagree, the result is a tie: a verdict that flips
// with position is position bias, not preference.
func (j *Judge) Compare(ctx context.Context, prompt chat.Conversation, a, b string) (Winner, error) {
	first, err := j.vote(ctx, prompt, a, b)
	if err != nil {
		return "", err
	}
	second, err := j.vote(ctx, prompt, b, a)
	if err != nil {
		return "", err
	}

	// Undo the swap in the second vote.
	switch second {
	case WinnerA:
		second = WinnerB
	case WinnerB:
		second = WinnerA
	}

	if first != second {
		return WinnerTie, nil
	}
	return first, nil
}

func (j *Judge) vote(ctx context.Context, prompt chat.Conversation, first, second string) (Winner, error) {
	rendered, err := j.tmpl.Render(prompt)
	if err != nil {
		return "", fmt.Errorf("rendering judge prompt: %w", err)
	}

	resp, err := j.provider.Complete(ctx, &llm.Prompt{
		SystemPrompt: judgeSystemPrompt,
		Messages: chat.Conversation{{
			Role: chat.RoleUser,
			Content: fmt.Sprintf("Conversation:\n%s\nResponse A:\n%s\n\nResponse B:\n%s",
				rendered, first, second),
		}},
	}, j.opts)
	if err != nil {
		return "", fmt.Errorf("judge call: %w", err)
	}

	return parseVerdict(resp.Content)
}

func parseVerdict(content string) (Winner, error) {
	raw := llm.ExtractJSONObject(content)
	if raw == "" {
		return "", fmt.Errorf("no JSON verdict in judge output: %q", content)
	}

	var verdict struct {
		Winner string `json:"winner"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return "", fmt.Errorf("verdict parse: %w", err)
	}

	switch Winner(verdict.Winner) {
	case WinnerA, WinnerB, WinnerTie:
		return Winner(verdict.Winner), nil
	}
	return "", fmt.Errorf("verdict names unknown winner %q", verdict.Winner)
}
