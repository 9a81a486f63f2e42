// Package lineage records where tuned models came from: which dataset a
// run trained on and how the result fared against its base model. The
// store is optional; everything works without it, but "which data
// produced this checkpoint" becomes archaeology.
package lineage

import (
	"context"
	"time"
)

// Run describes one completed fine-tuning run.
type Run struct {
	ID         string    `json:"id"`
	BaseModel  string    `json:"base_model"`
	TunedModel string    `json:"tuned_model"`
	DatasetID  string    `json:"dataset_id"` // training file ID at the trainer
	Records    int       `json:"records"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Verdict is an aggregated benchmark result between two models.
type Verdict struct {
	RunID    string  `json:"run_id"`
	ModelA   string  `json:"model_a"`
	ModelB   string  `json:"model_b"`
	WinRateA float64 `json:"win_rate_a"`
	Prompts  int     `json:"prompts"`
}

// Repository persists run lineage.
type Repository interface {
	// RecordRun stores a run and its dataset/model edges.
	RecordRun(ctx context.Context, run Run) error
	// RecordVerdict stores a benchmark edge between two models.
	RecordVerdict(ctx context.Context, v Verdict) error
	// RunsForModel lists runs that produced the given tuned model.
	RunsForModel(ctx context.Context, tunedModel string) ([]Run, error)
	// Close releases resources.
	Close(ctx context.Context) error
}
