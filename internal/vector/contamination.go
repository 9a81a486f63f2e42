package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/quench/internal/chat"
	"github.com/efebarandurmaz/quench/internal/dataset"
	"github.com/efebarandurmaz/quench/internal/llm"
)

// Contamination is a near-duplicate hit between the two sides of a
// split. A train prompt this close to an eval prompt makes the eval
// score meaningless for that record.
type Contamination struct {
	TrainPrompt string  `json:"train_prompt"`
	EvalPrompt  string  `json:"eval_prompt"`
	Score       float32 `json:"score"`
}

// Checker embeds prompts and cross-checks the split for leakage.
type Checker struct {
	provider  llm.Provider
	repo      Repository
	threshold float32
}

// NewChecker creates a contamination checker. threshold is the cosine
// similarity above which two prompts count as the same prompt.
func NewChecker(provider llm.Provider, repo Repository, threshold float64) *Checker {
	return &Checker{provider: provider, repo: repo, threshold: float32(threshold)}
}

// Check indexes the train prompts and searches each eval prompt against
// them. Returned hits are sorted by whatever order eval arrived in;
// callers decide whether hits are fatal.
func (c *Checker) Check(ctx context.Context, train, eval []dataset.Triplet) ([]Contamination, error) {
	trainTexts := promptTexts(train)
	if len(trainTexts) == 0 || len(eval) == 0 {
		return nil, nil
	}

	vectors, err := c.provider.Embed(ctx, trainTexts)
	if err != nil {
		return nil, fmt.Errorf("embed train prompts: %w", err)
	}
	if len(vectors) != len(trainTexts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(trainTexts))
	}

	docs := make([]Document, len(trainTexts))
	for i, text := range trainTexts {
		docs[i] = Document{
			ID:       uuid.NewString(),
			Content:  text,
			Vector:   vectors[i],
			Metadata: map[string]string{"split": "train"},
		}
	}
	if err := c.repo.Upsert(ctx, docs); err != nil {
		return nil, fmt.Errorf("index train prompts: %w", err)
	}

	evalTexts := promptTexts(eval)
	evalVectors, err := c.provider.Embed(ctx, evalTexts)
	if err != nil {
		return nil, fmt.Errorf("embed eval prompts: %w", err)
	}

	var hits []Contamination
	for i, vec := range evalVectors {
		results, err := c.repo.Search(ctx, vec, 1)
		if err != nil {
			return nil, fmt.Errorf("search eval prompt %d: %w", i, err)
		}
		for _, res := range results {
			if res.Score >= c.threshold {
				hits = append(hits, Contamination{
					TrainPrompt: res.Content,
					EvalPrompt:  evalTexts[i],
					Score:       res.Score,
				})
			}
		}
	}
	return hits, nil
}

// promptTexts flattens each triplet's prompt, skipping the system turn:
// a shared boilerplate system prompt is not contamination.
func promptTexts(triplets []dataset.Triplet) []string {
	out := make([]string, 0, len(triplets))
	for _, t := range triplets {
		var s string
		for _, m := range t.Prompt {
			if m.Role == chat.RoleSystem {
				continue
			}
			s += string(m.Role) + ": " + m.Content + "\n"
		}
		out = append(out, s)
	}
	return out
}
