// Package dataset reshapes labeled preference conversations into the
// prompt/chosen/rejected triplets a DPO trainer consumes.
package dataset

import (
	"errors"
	"fmt"

	"github.com/efebarandurmaz/quench/internal/chat"
)

var (
	// ErrMissingField marks an example without a usable chosen or
	// rejected branch. These are data-validity failures, never transient;
	// callers decide whether to skip or abort, the extractor never does.
	ErrMissingField = errors.New("example missing chosen or rejected conversation")

	// ErrMalformedConversation marks a branch with no assistant turn.
	ErrMalformedConversation = errors.New("conversation contains no assistant message")
)

// Example is one row of a preference dataset: two conversations sharing
// their leading turns and diverging in the final assistant response.
type Example struct {
	Chosen   chat.Conversation `json:"chosen"`
	Rejected chat.Conversation `json:"rejected"`
}

// Triplet is the derived training record. Prompt is the chosen branch
// with its final message removed and a system turn guaranteed up front.
type Triplet struct {
	Prompt   chat.Conversation `json:"prompt"`
	Chosen   chat.Message      `json:"chosen"`
	Rejected chat.Message      `json:"rejected"`
}

// LastAssistantMessage returns the assistant message closest to the end
// of conv. It scans backward with a bounded loop so a branch that never
// reaches an assistant turn fails with ErrMalformedConversation instead
// of running off the slice.
func LastAssistantMessage(conv chat.Conversation) (chat.Message, error) {
	for i := len(conv) - 1; i >= 0; i-- {
		if conv[i].Role == chat.RoleAssistant {
			return conv[i], nil
		}
	}
	return chat.Message{}, ErrMalformedConversation
}

// BuildTriplet derives a Triplet from ex. The prompt is the chosen
// conversation minus its last message; when the prompt does not open
// with a system turn, one is synthesized from defaultSystem. The input
// is never mutated and the result shares no backing storage with it.
func BuildTriplet(ex Example, defaultSystem string) (Triplet, error) {
	if len(ex.Chosen) == 0 {
		return Triplet{}, fmt.Errorf("chosen: %w", ErrMissingField)
	}
	if len(ex.Rejected) == 0 {
		return Triplet{}, fmt.Errorf("rejected: %w", ErrMissingField)
	}

	chosen, err := LastAssistantMessage(ex.Chosen)
	if err != nil {
		return Triplet{}, fmt.Errorf("chosen: %w", err)
	}
	rejected, err := LastAssistantMessage(ex.Rejected)
	if err != nil {
		return Triplet{}, fmt.Errorf("rejected: %w", err)
	}

	prompt := ex.Chosen[:len(ex.Chosen)-1].Clone()
	if !prompt.System() {
		prompt = append(chat.Conversation{{Role: chat.RoleSystem, Content: defaultSystem}}, prompt...)
	}

	return Triplet{Prompt: prompt, Chosen: chosen, Rejected: rejected}, nil
}
