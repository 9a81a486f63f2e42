package chat

import (
	"fmt"
	"strings"
)

// Template renders a conversation to the flat string form a model was
// trained on. Implementations are format-specific; callers treat the
// output as opaque.
type Template interface {
	// Render flattens the conversation. An empty conversation is an error.
	Render(conv Conversation) (string, error)
	// Name returns the template identifier (e.g. "chatml").
	Name() string
}

// ChatML renders the <|im_start|>/<|im_end|> format used by the Qwen and
// Zephyr model families.
type ChatML struct {
	// AddGenerationPrompt appends an opened assistant turn so the model
	// continues from it. Used when rendering prompts for sampling, not
	// when rendering complete training text.
	AddGenerationPrompt bool
}

// Transcript renders a conversation as plain "[role] content" lines.
// Used wherever a conversation is shown to a human or embedded in a
// judge prompt rather than fed to a model as training text.
type Transcript struct{}

func (t *Transcript) Name() string { return "transcript" }

func (t *Transcript) Render(conv Conversation) (string, error) {
	if len(conv) == 0 {
		return "", fmt.Errorf("transcript: empty conversation")
	}
	var b strings.Builder
	for _, m := range conv {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	return b.String(), nil
}

// TemplateByName resolves a template identifier.
func TemplateByName(name string) (Template, error) {
	switch name {
	case "chatml":
		return &ChatML{}, nil
	case "transcript":
		return &Transcript{}, nil
	}
	return nil, fmt.Errorf("unknown chat template %q", name)
}

func (t *ChatML) Name() string { return "chatml" }

func (t *ChatML) Render(conv Conversation) (string, error) {
	if len(conv) == 0 {
		return "", fmt.Errorf("chatml: empty conversation")
	}
	var b strings.Builder
	for _, m := range conv {
		b.WriteString("<|im_start|>")
		b.WriteString(string(m.Role))
		b.WriteString("\n")
		b.WriteString(m.Content)
		b.WriteString("<|im_end|>\n")
	}
	if t.AddGenerationPrompt {
		b.WriteString("<|im_start|>assistant\n")
	}
	return b.String(), nil
}
