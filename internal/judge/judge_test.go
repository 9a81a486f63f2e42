package judge

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/efebarandurmaz/quench/internal/chat"
	"github.com/efebarandurmaz/quench/internal/llm"
)

// scriptedJudge returns canned verdicts in call order.
type scriptedJudge struct {
	verdicts []string
	calls    int
}

func (s *scriptedJudge) Complete(_ context.Context, _ *llm.Prompt, _ *llm.RequestOptions) (*llm.Response, error) {
	if s.calls >= len(s.verdicts) {
		return nil, fmt.Errorf("unexpected call %d", s.calls)
	}
	v := s.verdicts[s.calls]
	s.calls++
	return &llm.Response{Content: v}, nil
}
func (s *scriptedJudge) Embed(_ context.Context, _ []string) ([][]float32, error) { return nil, nil }
func (s *scriptedJudge) Name() string                                             { return "scripted" }

// echoModel answers every prompt with a fixed string.
type echoModel struct{ reply string }

func (e *echoModel) Complete(_ context.Context, _ *llm.Prompt, _ *llm.RequestOptions) (*llm.Response, error) {
	return &llm.Response{Content: e.reply}, nil
}
func (e *echoModel) Embed(_ context.Context, _ []string) ([][]float32, error) { return nil, nil }
func (e *echoModel) Name() string                                             { return "echo" }

var prompt = chat.Conversation{
	{Role: chat.RoleSystem, Content: "Be helpful."},
	{Role: chat.RoleUser, Content: "Hi"},
}

func TestCompare_ConsistentVerdict(t *testing.T) {
	// First vote: A wins. Second vote has swapped positions, so the same
	// underlying preference reads "B".
	j := New(&scriptedJudge{verdicts: []string{
		`{"winner": "A", "reason": "better"}`,
		`{"winner": "B", "reason": "better"}`,
	}})

	w, err := j.Compare(context.Background(), prompt, "resp1", "resp2")
	if err != nil {
		t.Fatal(err)
	}
	if w != WinnerA {
		t.Fatalf("winner = %q, want A", w)
	}
}

func TestCompare_PositionBiasBecomesTie(t *testing.T) {
	// The judge prefers whichever response is shown first: both votes
	// say "A". That is bias, and the comparison must come out a tie.
	j := New(&scriptedJudge{verdicts: []string{
		`{"winner": "A", "reason": "first looks better"}`,
		`{"winner": "A", "reason": "first looks better"}`,
	}})

	w, err := j.Compare(context.Background(), prompt, "resp1", "resp2")
	if err != nil {
		t.Fatal(err)
	}
	if w != WinnerTie {
		t.Fatalf("winner = %q, want tie", w)
	}
}

func TestParseVerdict_ToleratesProseAndThinking(t *testing.T) {
	w, err := parseVerdict("<think>hmm, A is wordy</think>Here you go:\n" + `{"winner": "B", "reason": "concise"}`)
	if err != nil {
		t.Fatal(err)
	}
	if w != WinnerB {
		t.Fatalf("winner = %q", w)
	}
}

func TestParseVerdict_Rejects(t *testing.T) {
	for _, in := range []string{
		"no json at all",
		`{"winner": "C", "reason": "?"}`,
		`{"winner": 1}`,
	} {
		if _, err := parseVerdict(in); err == nil {
			t.Errorf("parseVerdict(%q) should fail", in)
		}
	}
}

func TestRun_Aggregates(t *testing.T) {
	// Three prompts, judged A, tie (disagreement), B.
	j := New(&scriptedJudge{verdicts: []string{
		`{"winner": "A"}`, `{"winner": "B"}`, // prompt 0: consistent A
		`{"winner": "A"}`, `{"winner": "A"}`, // prompt 1: biased, tie
		`{"winner": "B"}`, `{"winner": "A"}`, // prompt 2: consistent B
	}})

	prompts := []chat.Conversation{prompt, prompt, prompt}
	report, err := j.Run(context.Background(), prompts, Matchup{
		ModelA: &echoModel{reply: "tuned answer"},
		ModelB: &echoModel{reply: "base answer"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if report.WinsA != 1 || report.WinsB != 1 || report.Ties != 1 {
		t.Fatalf("report = %d/%d/%d", report.WinsA, report.WinsB, report.Ties)
	}
	if got := report.WinRateA(); got != 0.5 {
		t.Fatalf("win rate %v", got)
	}
	if len(report.Outcomes) != 3 {
		t.Fatalf("%d outcomes", len(report.Outcomes))
	}
	if report.Outcomes[0].ResponseA != "tuned answer" {
		t.Fatalf("outcome response = %q", report.Outcomes[0].ResponseA)
	}
}

func TestRun_RecordsPerPromptErrors(t *testing.T) {
	j := New(&scriptedJudge{verdicts: []string{"garbage", "garbage"}})

	report, err := j.Run(context.Background(), []chat.Conversation{prompt}, Matchup{
		ModelA: &echoModel{reply: "a"},
		ModelB: &echoModel{reply: "b"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("errors = %v", report.Errors)
	}
	if !strings.Contains(report.Errors[0], "prompt 0") {
		t.Fatalf("error should name the prompt: %v", report.Errors[0])
	}
}

func TestWinRateA_NoDecisions(t *testing.T) {
	r := &Report{Ties: 5}
	if r.WinRateA() != 0.5 {
		t.Fatalf("undecided benchmark should be neutral, got %v", r.WinRateA())
	}
}
