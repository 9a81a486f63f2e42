package temporal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/efebarandurmaz/quench/internal/chat"
	"github.com/efebarandurmaz/quench/internal/dataset"
	"github.com/efebarandurmaz/quench/internal/judge"
	"github.com/efebarandurmaz/quench/internal/lineage"
	"github.com/efebarandurmaz/quench/internal/llm"
	"github.com/efebarandurmaz/quench/internal/sample"
	"github.com/efebarandurmaz/quench/internal/trainer"
	"github.com/efebarandurmaz/quench/internal/vector"
)

// maxJudgePrompts caps how many eval prompts the benchmark stage judges.
const maxJudgePrompts = 32

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Trainer *trainer.Client
	Profile trainer.TuningProfile

	// Judge evaluates model pairs.
	Judge llm.Provider
	// ProviderForModel builds an inference provider bound to a model name.
	// It must return an error rather than a nil provider when no
	// inference backend is configured.
	ProviderForModel func(model string) (llm.Provider, error)

	// Checker and Lineage are optional; nil disables the stage.
	Checker *vector.Checker
	Lineage lineage.Repository

	PollInterval time.Duration
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// PrepareResult describes the written train/eval splits.
type PrepareResult struct {
	TrainPath string
	EvalPath  string

	TrainRecords int
	EvalRecords  int
	Skipped      int
	Dropped      int
}

// PrepareActivity extracts triplets from the labeled examples and writes
// the train/eval splits.
func PrepareActivity(ctx context.Context, input FineTuneInput) (PrepareResult, error) {
	f, err := os.Open(input.DatasetPath)
	if err != nil {
		return PrepareResult{}, err
	}
	defer f.Close()

	examples, err := dataset.ReadJSONL(f)
	if err != nil {
		return PrepareResult{}, fmt.Errorf("read %s: %w", input.DatasetPath, err)
	}

	res, err := dataset.Build(examples, dataset.BuildOptions{
		DefaultSystem: input.DefaultSystem,
		Policy:        dataset.Lenient,
		Workers:       input.Workers,
	})
	if err != nil {
		return PrepareResult{}, err
	}

	triplets := res.Triplets
	dropped := 0
	if input.LengthPercentile > 0 {
		kept, _, err := dataset.FilterByLength(triplets, input.LengthPercentile)
		if err != nil {
			return PrepareResult{}, err
		}
		dropped = len(triplets) - len(kept)
		triplets = kept
	}

	train, eval, err := dataset.Split(triplets, input.EvalFraction, input.Seed)
	if err != nil {
		return PrepareResult{}, err
	}

	if err := os.MkdirAll(input.OutputDir, 0o755); err != nil {
		return PrepareResult{}, err
	}

	out := PrepareResult{
		TrainPath:    filepath.Join(input.OutputDir, "train.jsonl"),
		EvalPath:     filepath.Join(input.OutputDir, "eval.jsonl"),
		TrainRecords: len(train),
		EvalRecords:  len(eval),
		Skipped:      len(res.Skipped),
		Dropped:      dropped,
	}
	if err := writeTriplets(out.TrainPath, train); err != nil {
		return PrepareResult{}, err
	}
	if err := writeTriplets(out.EvalPath, eval); err != nil {
		return PrepareResult{}, err
	}
	return out, nil
}

// ContaminationActivity counts eval prompts that near-duplicate a train
// prompt. Returns zero when no checker is configured.
func ContaminationActivity(ctx context.Context, prep PrepareResult) (int, error) {
	if deps.Checker == nil {
		return 0, nil
	}

	train, err := readTriplets(prep.TrainPath)
	if err != nil {
		return 0, err
	}
	eval, err := readTriplets(prep.EvalPath)
	if err != nil {
		return 0, err
	}

	flags, err := deps.Checker.Check(ctx, train, eval)
	if err != nil {
		return 0, err
	}
	return len(flags), nil
}

// TrainResult is the serializable outcome of a training run.
type TrainResult struct {
	JobID       string
	BaseModel   string
	TunedModel  string
	TrainFileID string
	Records     int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// TrainActivity uploads the splits, starts the fine-tuning job and polls
// it to completion, heartbeating so a stuck job is noticed.
func TrainActivity(ctx context.Context, input FineTuneInput, prep PrepareResult, attempt int) (TrainResult, error) {
	profile := deps.Profile
	if input.BaseModel != "" {
		profile.BaseModel = input.BaseModel
	}
	profile.DPO.Seed += attempt

	trainID, err := deps.Trainer.UploadDataset(ctx, prep.TrainPath)
	if err != nil {
		return TrainResult{}, err
	}
	evalID, err := deps.Trainer.UploadDataset(ctx, prep.EvalPath)
	if err != nil {
		return TrainResult{}, err
	}

	started := time.Now().UTC()
	jobID, err := deps.Trainer.StartJob(ctx, profile, trainID, evalID)
	if err != nil {
		return TrainResult{}, err
	}

	interval := deps.PollInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := deps.Trainer.Status(ctx, jobID)
		if err != nil {
			return TrainResult{}, err
		}
		activity.RecordHeartbeat(ctx, st.Status)

		if st.Terminal() {
			if st.Status != trainer.StatusSucceeded {
				return TrainResult{}, fmt.Errorf("job %s ended with status %s", jobID, st.Status)
			}
			return TrainResult{
				JobID:       st.ID,
				BaseModel:   profile.BaseModel,
				TunedModel:  st.TunedModel,
				TrainFileID: trainID,
				Records:     prep.TrainRecords,
				StartedAt:   started,
				FinishedAt:  time.Now().UTC(),
			}, nil
		}

		select {
		case <-ctx.Done():
			return TrainResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// MergeOutput reports the merged model produced from a job's adapter.
type MergeOutput struct {
	Model string
	Path  string
}

// MergeActivity folds the job's LoRA adapter into the base weights.
func MergeActivity(ctx context.Context, jobID string) (MergeOutput, error) {
	res, err := deps.Trainer.Merge(ctx, jobID)
	if err != nil {
		return MergeOutput{}, err
	}
	return MergeOutput{Model: res.Model, Path: res.Path}, nil
}

// BenchmarkResult aggregates the tuned-vs-base judgment.
type BenchmarkResult struct {
	TunedModel string
	BaseModel  string
	WinRateA   float64
	WinsA      int
	WinsB      int
	Ties       int
	Prompts    int
	Errors     []string
}

// BenchmarkActivity judges the tuned model against its base on held-out
// eval prompts. Falls back to the stock prompt set when the eval split
// is empty.
func BenchmarkActivity(ctx context.Context, input FineTuneInput, prep PrepareResult, tunedModel string) (BenchmarkResult, error) {
	eval, err := readTriplets(prep.EvalPath)
	if err != nil {
		return BenchmarkResult{}, err
	}

	var prompts []chat.Conversation
	for _, t := range eval {
		prompts = append(prompts, t.Prompt)
		if len(prompts) == maxJudgePrompts {
			break
		}
	}
	if len(prompts) == 0 {
		prompts = sample.DefaultPrompts(input.DefaultSystem)
	}

	baseModel := input.BaseModel
	if baseModel == "" {
		baseModel = deps.Profile.BaseModel
	}

	tuned, err := deps.ProviderForModel(tunedModel)
	if err != nil {
		return BenchmarkResult{}, fmt.Errorf("provider for tuned model %s: %w", tunedModel, err)
	}
	base, err := deps.ProviderForModel(baseModel)
	if err != nil {
		return BenchmarkResult{}, fmt.Errorf("provider for base model %s: %w", baseModel, err)
	}
	if tuned == nil || base == nil {
		return BenchmarkResult{}, fmt.Errorf("no inference provider configured for benchmark")
	}

	j := judge.New(deps.Judge)
	report, err := j.Run(ctx, prompts, judge.Matchup{
		ModelA: tuned,
		ModelB: base,
	})
	if err != nil {
		return BenchmarkResult{}, err
	}

	return BenchmarkResult{
		TunedModel: tunedModel,
		BaseModel:  baseModel,
		WinRateA:   report.WinRateA(),
		WinsA:      report.WinsA,
		WinsB:      report.WinsB,
		Ties:       report.Ties,
		Prompts:    len(report.Outcomes),
		Errors:     report.Errors,
	}, nil
}

// RecordLineageActivity stores the run and its verdict in the lineage
// graph. A nil repository makes this a no-op.
func RecordLineageActivity(ctx context.Context, trained TrainResult, bench BenchmarkResult) error {
	if deps.Lineage == nil {
		return nil
	}

	run := lineage.Run{
		ID:         trained.JobID,
		BaseModel:  trained.BaseModel,
		TunedModel: trained.TunedModel,
		DatasetID:  trained.TrainFileID,
		Records:    trained.Records,
		StartedAt:  trained.StartedAt,
		FinishedAt: trained.FinishedAt,
	}
	if err := deps.Lineage.RecordRun(ctx, run); err != nil {
		return err
	}

	return deps.Lineage.RecordVerdict(ctx, lineage.Verdict{
		RunID:    trained.JobID,
		ModelA:   bench.TunedModel,
		ModelB:   bench.BaseModel,
		WinRateA: bench.WinRateA,
		Prompts:  bench.Prompts,
	})
}

func writeTriplets(path string, triplets []dataset.Triplet) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := dataset.WriteJSONL(f, triplets); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readTriplets(path string) ([]dataset.Triplet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dataset.ReadTriplets(f)
}
