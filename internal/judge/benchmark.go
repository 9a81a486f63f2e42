package judge

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/quench/internal/chat"
	"github.com/efebarandurmaz/quench/internal/llm"
)

// Matchup names the two models under comparison. Conventionally A is
// the freshly tuned model and B the base it was tuned from.
type Matchup struct {
	ModelA llm.Provider
	ModelB llm.Provider

	// SampleOptions tunes candidate generation (not the judge itself).
	SampleOptions *llm.RequestOptions
}

// Outcome is the judgment for one prompt.
type Outcome struct {
	Prompt    chat.Conversation `json:"prompt"`
	ResponseA string            `json:"response_a"`
	ResponseB string            `json:"response_b"`
	Winner    Winner            `json:"winner"`
}

// Report aggregates a benchmark run.
type Report struct {
	Outcomes []Outcome `json:"outcomes"`
	WinsA    int       `json:"wins_a"`
	WinsB    int       `json:"wins_b"`
	Ties     int       `json:"ties"`
	Errors   []string  `json:"errors,omitempty"`
}

// WinRateA is A's share of decided matches; ties are excluded. Returns
// 0.5 when nothing was decided so a retry gate has a neutral signal.
func (r *Report) WinRateA() float64 {
	decided := r.WinsA + r.WinsB
	if decided == 0 {
		return 0.5
	}
	return float64(r.WinsA) / float64(decided)
}

// Run samples both models on every prompt and judges each pair. Prompt
// failures are recorded and skipped; the benchmark is only aborted when
// ctx ends.
func (j *Judge) Run(ctx context.Context, prompts []chat.Conversation, m Matchup) (*Report, error) {
	report := &Report{}

	for i, prompt := range prompts {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		respA, err := m.ModelA.Complete(ctx, &llm.Prompt{Messages: prompt}, m.SampleOptions)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("prompt %d: model A: %v", i, err))
			continue
		}
		respB, err := m.ModelB.Complete(ctx, &llm.Prompt{Messages: prompt}, m.SampleOptions)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("prompt %d: model B: %v", i, err))
			continue
		}

		winner, err := j.Compare(ctx, prompt, respA.Content, respB.Content)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("prompt %d: %v", i, err))
			continue
		}

		report.Outcomes = append(report.Outcomes, Outcome{
			Prompt:    prompt,
			ResponseA: respA.Content,
			ResponseB: respB.Content,
			Winner:    winner,
		})
		switch winner {
		case WinnerA:
			report.WinsA++
		case WinnerB:
			report.WinsB++
		default:
			report.Ties++
		}
	}

	return report, nil
}
