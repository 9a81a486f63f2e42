package temporal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/efebarandurmaz/quench/internal/lineage"
	"github.com/efebarandurmaz/quench/internal/llm"
)

const exampleLines = `{"chosen":[{"role":"user","content":"Hi"},{"role":"assistant","content":"Hello!"}],"rejected":[{"role":"user","content":"Hi"},{"role":"assistant","content":"Hi."}]}
{"chosen":[{"role":"user","content":"What is 2+2?"},{"role":"assistant","content":"4"}],"rejected":[{"role":"user","content":"What is 2+2?"},{"role":"assistant","content":"5"}]}
{"chosen":[{"role":"user","content":"Name a color"},{"role":"assistant","content":"Blue"}],"rejected":[{"role":"user","content":"Name a color"},{"role":"assistant","content":"brick"}]}
{"chosen":[{"role":"user","content":"broken example"}],"rejected":[{"role":"user","content":"broken example"}]}
`

func writeDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "examples.jsonl")
	if err := os.WriteFile(path, []byte(exampleLines), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPrepareActivity(t *testing.T) {
	SetDependencies(&Dependencies{})

	outDir := t.TempDir()
	input := FineTuneInput{
		DatasetPath:   writeDataset(t),
		OutputDir:     outDir,
		DefaultSystem: "You are an assistant.",
		EvalFraction:  0.34,
		Seed:          42,
	}

	res, err := PrepareActivity(context.Background(), input)
	if err != nil {
		t.Fatalf("PrepareActivity failed: %v", err)
	}

	// 4 records, 1 malformed: 3 triplets split roughly 2/1.
	if res.Skipped != 1 {
		t.Fatalf("expected 1 skipped record, got %d", res.Skipped)
	}
	if res.TrainRecords+res.EvalRecords != 3 {
		t.Fatalf("expected 3 triplets total, got %d train + %d eval",
			res.TrainRecords, res.EvalRecords)
	}

	train, err := readTriplets(res.TrainPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(train) != res.TrainRecords {
		t.Fatalf("train file has %d triplets, result says %d", len(train), res.TrainRecords)
	}
	for _, tr := range train {
		if !tr.Prompt.System() {
			t.Fatalf("expected synthesized system turn, got %+v", tr.Prompt)
		}
	}
}

func TestPrepareActivity_MissingFile(t *testing.T) {
	SetDependencies(&Dependencies{})

	_, err := PrepareActivity(context.Background(), FineTuneInput{
		DatasetPath: "/nonexistent/examples.jsonl",
		OutputDir:   t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected error for missing dataset")
	}
}

func TestContaminationActivity_NoChecker(t *testing.T) {
	SetDependencies(&Dependencies{})

	n, err := ContaminationActivity(context.Background(), PrepareResult{})
	if err != nil {
		t.Fatalf("ContaminationActivity failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 without a checker, got %d", n)
	}
}

// benchModel answers every prompt with a fixed string so the scripted
// judge can tell the two sides apart.
type benchModel struct {
	name  string
	reply string
}

func (m *benchModel) Complete(ctx context.Context, p *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	return &llm.Response{Content: m.reply, Model: m.name}, nil
}

func (m *benchModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("%s: embeddings not supported", m.name)
}

func (m *benchModel) Name() string { return m.name }

// verdictJudge always declares the response containing favor the winner.
type verdictJudge struct {
	favor string
}

func (j *verdictJudge) Complete(ctx context.Context, p *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	text := ""
	for _, m := range p.Messages {
		text += m.Content
	}
	// The judge prompt labels candidates A and B; pick whichever slot
	// holds the favored string.
	idxA := strings.Index(text, "Response A:")
	idxFav := strings.Index(text, j.favor)
	winner := "B"
	idxB := strings.Index(text, "Response B:")
	if idxFav > idxA && idxFav < idxB {
		winner = "A"
	}
	return &llm.Response{Content: `{"winner":"` + winner + `"}`}, nil
}

func (j *verdictJudge) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("judge: embeddings not supported")
}

func (j *verdictJudge) Name() string { return "judge" }

func TestBenchmarkActivity(t *testing.T) {
	models := map[string]llm.Provider{
		"tuned-model": &benchModel{name: "tuned-model", reply: "polished answer"},
		"base-model":  &benchModel{name: "base-model", reply: "rough answer"},
	}
	SetDependencies(&Dependencies{
		Judge: &verdictJudge{favor: "polished"},
		ProviderForModel: func(model string) (llm.Provider, error) {
			return models[model], nil
		},
	})

	outDir := t.TempDir()
	input := FineTuneInput{
		DatasetPath:   writeDataset(t),
		OutputDir:     outDir,
		BaseModel:     "base-model",
		DefaultSystem: "You are an assistant.",
		EvalFraction:  0.34,
		Seed:          42,
	}
	prep, err := PrepareActivity(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}

	bench, err := BenchmarkActivity(context.Background(), input, prep, "tuned-model")
	if err != nil {
		t.Fatalf("BenchmarkActivity failed: %v", err)
	}

	if bench.TunedModel != "tuned-model" || bench.BaseModel != "base-model" {
		t.Fatalf("unexpected matchup: %+v", bench)
	}
	if bench.Prompts != prep.EvalRecords {
		t.Fatalf("expected %d judged prompts, got %d", prep.EvalRecords, bench.Prompts)
	}
	if bench.WinsA != bench.Prompts || bench.WinRateA != 1.0 {
		t.Fatalf("expected a sweep for the tuned model, got %+v", bench)
	}
}

func TestBenchmarkActivity_NoInferenceProvider(t *testing.T) {
	SetDependencies(&Dependencies{
		Judge: &verdictJudge{favor: "polished"},
		ProviderForModel: func(model string) (llm.Provider, error) {
			return nil, nil
		},
	})

	input := FineTuneInput{
		DatasetPath:   writeDataset(t),
		OutputDir:     t.TempDir(),
		BaseModel:     "base-model",
		DefaultSystem: "You are an assistant.",
		EvalFraction:  0.34,
		Seed:          42,
	}
	prep, err := PrepareActivity(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}

	// A worker with no inference backend configured must fail the
	// activity with an error, not crash judging a nil provider.
	_, err = BenchmarkActivity(context.Background(), input, prep, "tuned-model")
	if err == nil {
		t.Fatal("expected an error when no inference provider is configured")
	}
	if !strings.Contains(err.Error(), "no inference provider") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// memLineage collects records in memory.
type memLineage struct {
	mu       sync.Mutex
	runs     []lineage.Run
	verdicts []lineage.Verdict
}

func (m *memLineage) RecordRun(ctx context.Context, run lineage.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memLineage) RecordVerdict(ctx context.Context, v lineage.Verdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts = append(m.verdicts, v)
	return nil
}

func (m *memLineage) RunsForModel(ctx context.Context, tunedModel string) ([]lineage.Run, error) {
	return nil, nil
}

func (m *memLineage) Close(ctx context.Context) error { return nil }

func TestRecordLineageActivity(t *testing.T) {
	store := &memLineage{}
	SetDependencies(&Dependencies{Lineage: store})

	trained := TrainResult{
		JobID:       "ftjob-1",
		BaseModel:   "zephyr-base",
		TunedModel:  "zephyr-dpo",
		TrainFileID: "file-1",
		Records:     100,
	}
	bench := BenchmarkResult{
		TunedModel: "zephyr-dpo",
		BaseModel:  "zephyr-base",
		WinRateA:   0.7,
		Prompts:    10,
	}

	if err := RecordLineageActivity(context.Background(), trained, bench); err != nil {
		t.Fatalf("RecordLineageActivity failed: %v", err)
	}

	if len(store.runs) != 1 || store.runs[0].ID != "ftjob-1" {
		t.Fatalf("expected 1 recorded run, got %+v", store.runs)
	}
	if len(store.verdicts) != 1 || store.verdicts[0].WinRateA != 0.7 {
		t.Fatalf("expected 1 recorded verdict, got %+v", store.verdicts)
	}
}

func TestRecordLineageActivity_NoStore(t *testing.T) {
	SetDependencies(&Dependencies{})

	if err := RecordLineageActivity(context.Background(), TrainResult{}, BenchmarkResult{}); err != nil {
		t.Fatalf("expected no-op without a store, got %v", err)
	}
}
