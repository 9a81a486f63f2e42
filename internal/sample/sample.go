// Package sample implements the manual "vibe check": the same prompts
// sent to the base and tuned models, printed side by side for a human
// to eyeball before trusting any benchmark number.
package sample

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/efebarandurmaz/quench/internal/chat"
	"github.com/efebarandurmaz/quench/internal/llm"
)

// Pair holds one prompt's completions from both models.
type Pair struct {
	Prompt chat.Conversation `json:"prompt"`
	Base   string            `json:"base"`
	Tuned  string            `json:"tuned"`
}

// Sampler generates comparison pairs.
type Sampler struct {
	Base  llm.Provider
	Tuned llm.Provider
	Opts  *llm.RequestOptions
}

// Generate completes every prompt on both models. Fails fast: a vibe
// check with missing halves is worthless.
func (s *Sampler) Generate(ctx context.Context, prompts []chat.Conversation) ([]Pair, error) {
	pairs := make([]Pair, 0, len(prompts))
	for i, prompt := range prompts {
		base, err := s.Base.Complete(ctx, &llm.Prompt{Messages: prompt}, s.Opts)
		if err != nil {
			return nil, fmt.Errorf("prompt %d: base model: %w", i, err)
		}
		tuned, err := s.Tuned.Complete(ctx, &llm.Prompt{Messages: prompt}, s.Opts)
		if err != nil {
			return nil, fmt.Errorf("prompt %d: tuned model: %w", i, err)
		}
		pairs = append(pairs, Pair{Prompt: prompt, Base: base.Content, Tuned: tuned.Content})
	}
	return pairs, nil
}

// Print writes pairs to w with the prompt dimmed, base output yellow and
// tuned output green.
func Print(w io.Writer, pairs []Pair) {
	header := color.New(color.Bold)
	dim := color.New(color.Faint)
	baseCol := color.New(color.FgYellow)
	tunedCol := color.New(color.FgGreen)

	tmpl := &chat.Transcript{}
	for i, p := range pairs {
		header.Fprintf(w, "=== Prompt %d ===\n", i+1)
		if rendered, err := tmpl.Render(p.Prompt); err == nil {
			dim.Fprint(w, rendered)
		}
		baseCol.Fprintf(w, "\n[base]  %s\n", p.Base)
		tunedCol.Fprintf(w, "[tuned] %s\n\n", p.Tuned)
	}
}

// DefaultPrompts are the smoke-test prompts used when the caller brings
// none. Deliberately varied: instruction following, refusal pressure,
// formatting, tone.
func DefaultPrompts(systemText string) []chat.Conversation {
	users := []string{
		"Explain LoRA fine-tuning to a product manager in three sentences.",
		"Write a haiku about gradient descent.",
		"My code throws 'index out of range'. What are the usual causes?",
		"Give me a confident-sounding but wrong fact. Actually, don't. Tell me why I shouldn't want that.",
		"Summarize the tradeoffs between 4-bit and 16-bit model loading.",
	}
	prompts := make([]chat.Conversation, len(users))
	for i, u := range users {
		prompts[i] = chat.Conversation{
			{Role: chat.RoleSystem, Content: systemText},
			{Role: chat.RoleUser, Content: u},
		}
	}
	return prompts
}
