package dataset

import (
	"errors"
	"testing"

	"github.com/efebarandurmaz/quench/internal/chat"
)

func TestLastAssistantMessage_PicksClosestToEnd(t *testing.T) {
	conv := chat.Conversation{
		{Role: chat.RoleUser, Content: "one"},
		{Role: chat.RoleAssistant, Content: "first"},
		{Role: chat.RoleUser, Content: "two"},
		{Role: chat.RoleAssistant, Content: "last"},
		{Role: chat.RoleUser, Content: "trailing"},
	}

	m, err := LastAssistantMessage(conv)
	if err != nil {
		t.Fatal(err)
	}
	if m.Content != "last" {
		t.Fatalf("expected last assistant turn, got %q", m.Content)
	}
}

func TestLastAssistantMessage_NoAssistant(t *testing.T) {
	conv := chat.Conversation{
		{Role: chat.RoleSystem, Content: "sys"},
		{Role: chat.RoleUser, Content: "Hi"},
	}

	_, err := LastAssistantMessage(conv)
	if !errors.Is(err, ErrMalformedConversation) {
		t.Fatalf("expected ErrMalformedConversation, got %v", err)
	}
}

func TestBuildTriplet_SynthesizesSystemMessage(t *testing.T) {
	ex := Example{
		Chosen: chat.Conversation{
			{Role: chat.RoleUser, Content: "Hi"},
			{Role: chat.RoleAssistant, Content: "Hello!"},
		},
		Rejected: chat.Conversation{
			{Role: chat.RoleUser, Content: "Hi"},
			{Role: chat.RoleAssistant, Content: "Hi."},
		},
	}

	tr, err := BuildTriplet(ex, "You are an assistant.")
	if err != nil {
		t.Fatal(err)
	}

	want := chat.Conversation{
		{Role: chat.RoleSystem, Content: "You are an assistant."},
		{Role: chat.RoleUser, Content: "Hi"},
	}
	if len(tr.Prompt) != len(want) {
		t.Fatalf("prompt length %d, want %d", len(tr.Prompt), len(want))
	}
	for i := range want {
		if tr.Prompt[i] != want[i] {
			t.Fatalf("prompt[%d] = %+v, want %+v", i, tr.Prompt[i], want[i])
		}
	}
	if tr.Chosen.Content != "Hello!" || tr.Chosen.Role != chat.RoleAssistant {
		t.Fatalf("chosen = %+v", tr.Chosen)
	}
	if tr.Rejected.Content != "Hi." || tr.Rejected.Role != chat.RoleAssistant {
		t.Fatalf("rejected = %+v", tr.Rejected)
	}
}

func TestBuildTriplet_KeepsExistingSystemMessage(t *testing.T) {
	ex := Example{
		Chosen: chat.Conversation{
			{Role: chat.RoleSystem, Content: "Be terse."},
			{Role: chat.RoleUser, Content: "Hi"},
			{Role: chat.RoleAssistant, Content: "Hello!"},
		},
		Rejected: chat.Conversation{
			{Role: chat.RoleSystem, Content: "Be terse."},
			{Role: chat.RoleUser, Content: "Hi"},
			{Role: chat.RoleAssistant, Content: "Hi."},
		},
	}

	tr, err := BuildTriplet(ex, "default text")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Prompt[0].Content != "Be terse." {
		t.Fatalf("prompt[0] = %+v, want the original system turn", tr.Prompt[0])
	}
	// Exactly one system turn: the original, never a duplicate.
	for i, m := range tr.Prompt[1:] {
		if m.Role == chat.RoleSystem {
			t.Fatalf("duplicate system turn at prompt[%d]", i+1)
		}
	}
	if len(tr.Prompt) != 2 {
		t.Fatalf("prompt length %d, want 2", len(tr.Prompt))
	}
}

func TestBuildTriplet_RejectedWithoutAssistant(t *testing.T) {
	ex := Example{
		Chosen: chat.Conversation{
			{Role: chat.RoleUser, Content: "Hi"},
			{Role: chat.RoleAssistant, Content: "Hello!"},
		},
		Rejected: chat.Conversation{
			{Role: chat.RoleUser, Content: "Hi"},
		},
	}

	_, err := BuildTriplet(ex, "default")
	if !errors.Is(err, ErrMalformedConversation) {
		t.Fatalf("expected ErrMalformedConversation, got %v", err)
	}
}

func TestBuildTriplet_EmptyBranches(t *testing.T) {
	turn := chat.Conversation{{Role: chat.RoleAssistant, Content: "ok"}}

	for _, tc := range []struct {
		name string
		ex   Example
	}{
		{"empty chosen", Example{Rejected: turn}},
		{"empty rejected", Example{Chosen: turn}},
		{"both empty", Example{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildTriplet(tc.ex, "default")
			if !errors.Is(err, ErrMissingField) {
				t.Fatalf("expected ErrMissingField, got %v", err)
			}
		})
	}
}

// Prompt plus the chosen message must reconstruct the chosen branch when
// the branch already carried a system turn.
func TestBuildTriplet_Reconstruction(t *testing.T) {
	chosen := chat.Conversation{
		{Role: chat.RoleSystem, Content: "sys"},
		{Role: chat.RoleUser, Content: "question"},
		{Role: chat.RoleAssistant, Content: "answer"},
	}
	ex := Example{Chosen: chosen, Rejected: chosen}

	tr, err := BuildTriplet(ex, "unused")
	if err != nil {
		t.Fatal(err)
	}

	rebuilt := append(tr.Prompt.Clone(), tr.Chosen)
	if len(rebuilt) != len(chosen) {
		t.Fatalf("rebuilt length %d, want %d", len(rebuilt), len(chosen))
	}
	for i := range chosen {
		if rebuilt[i] != chosen[i] {
			t.Fatalf("rebuilt[%d] = %+v, want %+v", i, rebuilt[i], chosen[i])
		}
	}
}

func TestBuildTriplet_DoesNotMutateInput(t *testing.T) {
	chosen := chat.Conversation{
		{Role: chat.RoleUser, Content: "Hi"},
		{Role: chat.RoleAssistant, Content: "Hello!"},
	}
	ex := Example{Chosen: chosen, Rejected: chosen.Clone()}

	tr, err := BuildTriplet(ex, "default")
	if err != nil {
		t.Fatal(err)
	}
	tr.Prompt[len(tr.Prompt)-1].Content = "mutated"

	if ex.Chosen[0].Content != "Hi" {
		t.Fatal("input conversation was mutated through the triplet")
	}
}
