// Package temporal runs the fine-tuning pipeline as a durable workflow.
// Every stage is an activity so a crashed worker resumes mid-pipeline
// instead of re-uploading datasets or re-training from scratch.
package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"
)

const maxTrainAttempts = 2

// FineTuneInput holds the workflow parameters.
type FineTuneInput struct {
	DatasetPath string // labeled examples, JSONL
	OutputDir   string // where train/eval splits are written

	BaseModel     string // overrides the profile's base model if set
	DefaultSystem string
	EvalFraction  float64
	Seed          int64
	Workers       int

	// LengthPercentile drops triplets above this length percentile.
	// Zero disables filtering.
	LengthPercentile float64

	// CheckContamination runs the train/eval near-duplicate check
	// before training.
	CheckContamination bool

	// WinRateGate is the tuned-vs-base win rate below which training is
	// retried (default: 0.55).
	WinRateGate float64
}

// FineTuneOutput holds the workflow result.
type FineTuneOutput struct {
	JobID      string
	TunedModel string

	TrainRecords int
	EvalRecords  int
	Skipped      int
	Dropped      int
	Contaminated int

	WinRateA float64
	Attempts int
}

// FineTuneWorkflow orchestrates prepare, train, merge and judge, retrying
// the training stage when the tuned model fails to beat its base.
func FineTuneWorkflow(ctx workflow.Context, input FineTuneInput) (*FineTuneOutput, error) {
	gate := input.WinRateGate
	if gate <= 0 {
		gate = 0.55
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	// Training holds a remote job open for however long the run takes.
	trainCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 12 * time.Hour,
		HeartbeatTimeout:    2 * time.Minute,
	})

	var prep PrepareResult
	if err := workflow.ExecuteActivity(ctx, PrepareActivity, input).Get(ctx, &prep); err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}

	output := &FineTuneOutput{
		TrainRecords: prep.TrainRecords,
		EvalRecords:  prep.EvalRecords,
		Skipped:      prep.Skipped,
		Dropped:      prep.Dropped,
	}

	if input.CheckContamination {
		var contaminated int
		if err := workflow.ExecuteActivity(ctx, ContaminationActivity, prep).Get(ctx, &contaminated); err != nil {
			return nil, fmt.Errorf("contamination check: %w", err)
		}
		output.Contaminated = contaminated
	}

	var trained TrainResult
	var bench BenchmarkResult
	for attempt := 0; attempt < maxTrainAttempts; attempt++ {
		output.Attempts = attempt + 1

		// Reseeding per attempt changes batch order, which is the only
		// lever left when the data itself stays fixed.
		if err := workflow.ExecuteActivity(trainCtx, TrainActivity, input, prep, attempt).Get(ctx, &trained); err != nil {
			return nil, fmt.Errorf("train attempt %d: %w", attempt, err)
		}

		var merged MergeOutput
		if err := workflow.ExecuteActivity(ctx, MergeActivity, trained.JobID).Get(ctx, &merged); err != nil {
			return nil, fmt.Errorf("merge attempt %d: %w", attempt, err)
		}
		trained.TunedModel = merged.Model

		if err := workflow.ExecuteActivity(ctx, BenchmarkActivity, input, prep, trained.TunedModel).Get(ctx, &bench); err != nil {
			return nil, fmt.Errorf("judge attempt %d: %w", attempt, err)
		}

		if bench.WinRateA >= gate {
			break
		}
	}

	output.JobID = trained.JobID
	output.TunedModel = trained.TunedModel
	output.WinRateA = bench.WinRateA

	// Lineage is best effort; a down graph store must not fail the run.
	_ = workflow.ExecuteActivity(ctx, RecordLineageActivity, trained, bench).Get(ctx, nil)

	return output, nil
}
