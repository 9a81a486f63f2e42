package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/quench/internal/chat"
	"github.com/efebarandurmaz/quench/internal/config"
	"github.com/efebarandurmaz/quench/internal/dataset"
	"github.com/efebarandurmaz/quench/internal/judge"
	"github.com/efebarandurmaz/quench/internal/lineage"
	lineageneo4j "github.com/efebarandurmaz/quench/internal/lineage/neo4j"
	"github.com/efebarandurmaz/quench/internal/llm"
	"github.com/efebarandurmaz/quench/internal/llm/openai"
	"github.com/efebarandurmaz/quench/internal/observability"
	"github.com/efebarandurmaz/quench/internal/sample"
	"github.com/efebarandurmaz/quench/internal/temporal"
	"github.com/efebarandurmaz/quench/internal/trainer"
	"github.com/efebarandurmaz/quench/internal/vector"
	vectorqdrant "github.com/efebarandurmaz/quench/internal/vector/qdrant"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "quench",
		Short: "DPO fine-tuning pipeline: extract preference triplets, train, merge, judge",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/quench.yaml", "Config file path")

	var (
		inputPath    string
		outputDir    string
		strict       bool
		workers      int
		filterPct    float64
		checkContam  bool
		evalFraction float64
		seed         int64
		render       string
	)
	prepareCmd := &cobra.Command{
		Use:   "prepare",
		Short: "Extract preference triplets and write train/eval splits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrepare(configPath, inputPath, outputDir, strict, workers, filterPct, checkContam, evalFraction, seed, render)
		},
	}
	prepareCmd.Flags().StringVar(&inputPath, "input", "", "Labeled examples JSONL")
	prepareCmd.Flags().StringVar(&outputDir, "output", "", "Output directory for splits")
	prepareCmd.Flags().BoolVar(&strict, "strict", false, "Abort on the first bad record instead of skipping")
	prepareCmd.Flags().IntVar(&workers, "workers", 0, "Parallel extraction workers (0 = config)")
	prepareCmd.Flags().Float64Var(&filterPct, "filter", -1, "Length percentile filter (-1 = config, 0 = off)")
	prepareCmd.Flags().BoolVar(&checkContam, "check-contamination", false, "Flag eval prompts that near-duplicate train prompts")
	prepareCmd.Flags().Float64Var(&evalFraction, "eval-fraction", 0, "Eval split fraction (0 = config)")
	prepareCmd.Flags().Int64Var(&seed, "seed", 0, "Split shuffle seed (0 = config)")
	prepareCmd.Flags().StringVar(&render, "render", "", "Also write flat-text splits rendered through a chat template (e.g. chatml)")
	_ = prepareCmd.MarkFlagRequired("input")
	_ = prepareCmd.MarkFlagRequired("output")

	var (
		trainPath string
		evalPath  string
		baseModel string
		runName   string
		beta      float64
		epochs    int
		noWait    bool
	)
	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Upload splits and run a DPO fine-tuning job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(configPath, trainPath, evalPath, baseModel, runName, beta, epochs, noWait)
		},
	}
	trainCmd.Flags().StringVar(&trainPath, "train", "", "Training triplets JSONL")
	trainCmd.Flags().StringVar(&evalPath, "eval", "", "Eval triplets JSONL")
	trainCmd.Flags().StringVar(&baseModel, "base-model", "", "Base model (overrides config)")
	trainCmd.Flags().StringVar(&runName, "name", "dpo", "Run name, used as the tuned model suffix")
	trainCmd.Flags().Float64Var(&beta, "beta", 0, "DPO beta (0 = default)")
	trainCmd.Flags().IntVar(&epochs, "epochs", 0, "Training epochs (0 = default)")
	trainCmd.Flags().BoolVar(&noWait, "no-wait", false, "Start the job and return without polling")
	_ = trainCmd.MarkFlagRequired("train")
	_ = trainCmd.MarkFlagRequired("eval")

	var jobID string
	mergeCmd := &cobra.Command{
		Use:   "merge",
		Short: "Fold a job's LoRA adapter into the base weights",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(configPath, jobID)
		},
	}
	mergeCmd.Flags().StringVar(&jobID, "job", "", "Fine-tuning job ID")
	_ = mergeCmd.MarkFlagRequired("job")

	var (
		tunedModel  string
		promptsPath string
	)
	sampleCmd := &cobra.Command{
		Use:   "sample",
		Short: "Vibe check: print base vs tuned completions side by side",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSample(configPath, baseModel, tunedModel, promptsPath)
		},
	}
	sampleCmd.Flags().StringVar(&baseModel, "base-model", "", "Base model (overrides config)")
	sampleCmd.Flags().StringVar(&tunedModel, "tuned-model", "", "Tuned model name")
	sampleCmd.Flags().StringVar(&promptsPath, "prompts", "", "Triplets JSONL to take prompts from (default: stock prompts)")
	_ = sampleCmd.MarkFlagRequired("tuned-model")

	var (
		judgeEval   string
		jsonReport  bool
		maxPrompts  int
		recordGraph bool
	)
	judgeCmd := &cobra.Command{
		Use:   "judge",
		Short: "Benchmark tuned vs base with an LLM judge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJudge(configPath, baseModel, tunedModel, judgeEval, maxPrompts, jsonReport, recordGraph)
		},
	}
	judgeCmd.Flags().StringVar(&baseModel, "base-model", "", "Base model (overrides config)")
	judgeCmd.Flags().StringVar(&tunedModel, "tuned-model", "", "Tuned model name")
	judgeCmd.Flags().StringVar(&judgeEval, "eval", "", "Eval triplets JSONL to take prompts from")
	judgeCmd.Flags().IntVar(&maxPrompts, "max-prompts", 32, "Cap on judged prompts")
	judgeCmd.Flags().BoolVar(&jsonReport, "json", false, "Output the report as JSON")
	judgeCmd.Flags().BoolVar(&recordGraph, "record", false, "Record the verdict in the lineage graph")
	_ = judgeCmd.MarkFlagRequired("tuned-model")
	_ = judgeCmd.MarkFlagRequired("eval")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline in process: prepare, train, merge, judge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(configPath, inputPath, outputDir, baseModel, runName, checkContam)
		},
	}
	runCmd.Flags().StringVar(&inputPath, "input", "", "Labeled examples JSONL")
	runCmd.Flags().StringVar(&outputDir, "output", "", "Working directory for splits")
	runCmd.Flags().StringVar(&baseModel, "base-model", "", "Base model (overrides config)")
	runCmd.Flags().StringVar(&runName, "name", "dpo", "Run name, used as the tuned model suffix")
	runCmd.Flags().BoolVar(&checkContam, "check-contamination", false, "Run the train/eval contamination check")
	_ = runCmd.MarkFlagRequired("input")
	_ = runCmd.MarkFlagRequired("output")

	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit the pipeline as a Temporal workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(configPath, inputPath, outputDir, baseModel, checkContam)
		},
	}
	submitCmd.Flags().StringVar(&inputPath, "input", "", "Labeled examples JSONL")
	submitCmd.Flags().StringVar(&outputDir, "output", "", "Working directory for splits")
	submitCmd.Flags().StringVar(&baseModel, "base-model", "", "Base model (overrides config)")
	submitCmd.Flags().BoolVar(&checkContam, "check-contamination", false, "Run the train/eval contamination check")
	_ = submitCmd.MarkFlagRequired("input")
	_ = submitCmd.MarkFlagRequired("output")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-14s %s\n", name, url)
			}
			fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println("  none           (no provider; prepare still works)")
			fmt.Println()
			fmt.Println("Configure in quench.yaml or via environment:")
			fmt.Println("  QUENCH_LLM_PROVIDER=vllm")
			fmt.Println("  QUENCH_LLM_MODEL=HuggingFaceH4/zephyr-7b-beta")
			fmt.Println("  QUENCH_LLM_API_KEY=...")
		},
	}

	rootCmd.AddCommand(prepareCmd, trainCmd, mergeCmd, sampleCmd, judgeCmd, runCmd, submitCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = &config.Config{}
		cfg.Dataset.DefaultSystem = "You are a helpful assistant."
		cfg.Dataset.EvalFraction = 0.05
		cfg.Dataset.Seed = 42
		cfg.Vector.Threshold = 0.95
	}
	return cfg
}

func newFactory() *llm.Factory {
	factory := llm.NewFactory()
	llm.RegisterDefaults(factory, func(apiKey, model, baseURL, embedModel string) llm.Provider {
		return openai.New(apiKey, model, baseURL, embedModel)
	})
	return factory
}

// providerForRole builds a provider from the role-resolved LLM config.
// An empty model argument keeps the configured model.
func providerForRole(factory *llm.Factory, cfg *config.Config, role, model string) (llm.Provider, error) {
	rc := cfg.LLM.ResolveForRole(role)
	if model != "" {
		rc.Model = model
	}

	pc := llm.DefaultProviderConfig()
	pc.Provider = rc.Provider
	pc.APIKey = rc.APIKey
	pc.Model = rc.Model
	pc.BaseURL = rc.BaseURL
	pc.EmbedModel = cfg.LLM.EmbedModel

	p, err := factory.Create(pc)
	if err != nil {
		return nil, fmt.Errorf("creating %s provider: %w", role, err)
	}
	if p == nil {
		return nil, fmt.Errorf("no LLM provider configured for role %q", role)
	}
	return p, nil
}

func tuningProfile(cfg *config.Config, name, baseModel string, beta float64, epochs int) trainer.TuningProfile {
	profile := trainer.TuningProfile{
		Name:      name,
		BaseModel: cfg.Trainer.BaseModel,
		DPO:       trainer.DefaultDPOConfig(),
		LoRA:      trainer.DefaultLoRAConfig(),
		Quant:     trainer.DefaultQuantConfig(),
		HubToken:  cfg.Trainer.HubToken,
	}
	if baseModel != "" {
		profile.BaseModel = baseModel
	}
	if beta > 0 {
		profile.DPO.Beta = beta
	}
	if epochs > 0 {
		profile.DPO.Epochs = epochs
	}
	for _, w := range profile.Validate() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	return profile
}

func pollInterval(cfg *config.Config) time.Duration {
	if cfg.Trainer.PollInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(cfg.Trainer.PollInterval)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: bad poll_interval %q: %v\n", cfg.Trainer.PollInterval, err)
		return 0
	}
	return d
}

// contaminationChecker wires the embedding provider and qdrant together.
// Returns nil when the vector store is not configured.
func contaminationChecker(ctx context.Context, factory *llm.Factory, cfg *config.Config) (*vector.Checker, func(), error) {
	if cfg.Vector.Host == "" {
		return nil, func() {}, nil
	}

	embedder, err := providerForRole(factory, cfg, "embed", "")
	if err != nil {
		return nil, nil, err
	}

	collection := cfg.Vector.Collection
	if collection == "" {
		collection = "quench-prompts"
	}
	repo, err := vectorqdrant.New(ctx, cfg.Vector.Host, cfg.Vector.Port, collection)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	cleanup := func() { repo.Close() }
	return vector.NewChecker(embedder, repo, cfg.Vector.Threshold), cleanup, nil
}

// lineageRepo opens the neo4j lineage store, or nil when unconfigured.
func lineageRepo(ctx context.Context, cfg *config.Config) (lineage.Repository, error) {
	if cfg.Lineage.URI == "" {
		return nil, nil
	}
	return lineageneo4j.New(ctx, cfg.Lineage.URI, cfg.Lineage.Username, cfg.Lineage.Password)
}

func runPrepare(configPath, inputPath, outputDir string, strict bool, workers int, filterPct float64, checkContam bool, evalFraction float64, seed int64, render string) error {
	cfg := loadConfig(configPath)
	ctx := context.Background()

	if workers == 0 {
		workers = cfg.Dataset.Workers
	}
	if filterPct < 0 {
		filterPct = cfg.Dataset.LengthPercentile
	}
	if evalFraction == 0 {
		evalFraction = cfg.Dataset.EvalFraction
	}
	if seed == 0 {
		seed = cfg.Dataset.Seed
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	examples, err := dataset.ReadJSONL(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", inputPath, err)
	}
	fmt.Printf("Loaded %d labeled examples from %s\n", len(examples), inputPath)

	ctx, span := observability.StartExtractSpan(ctx, len(examples))
	defer span.End()

	policy := dataset.Lenient
	if strict {
		policy = dataset.Strict
	}
	res, err := dataset.Build(examples, dataset.BuildOptions{
		DefaultSystem: cfg.Dataset.DefaultSystem,
		Policy:        policy,
		Workers:       workers,
	})
	if err != nil {
		return err
	}
	for _, skip := range res.Skipped {
		fmt.Fprintf(os.Stderr, "Skipped: %v\n", skip)
	}

	triplets := res.Triplets
	if filterPct > 0 {
		kept, cutoff, err := dataset.FilterByLength(triplets, filterPct)
		if err != nil {
			return err
		}
		fmt.Printf("Length filter: dropped %d triplets above %d chars\n", len(triplets)-len(kept), cutoff)
		triplets = kept
	}
	observability.RecordExtractResult(span, len(triplets), len(res.Skipped))

	train, eval, err := dataset.Split(triplets, evalFraction, seed)
	if err != nil {
		return err
	}

	if checkContam {
		factory := newFactory()
		checker, cleanup, err := contaminationChecker(ctx, factory, cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		if checker == nil {
			fmt.Fprintln(os.Stderr, "Warning: contamination check requested but vector.host is not configured")
		} else {
			flags, err := checker.Check(ctx, train, eval)
			if err != nil {
				return fmt.Errorf("contamination check: %w", err)
			}
			for _, c := range flags {
				fmt.Fprintf(os.Stderr, "Contamination (%.3f): eval prompt %q duplicates train prompt %q\n",
					c.Score, truncate(c.EvalPrompt, 60), truncate(c.TrainPrompt, 60))
			}
			fmt.Printf("Contamination check: %d flagged of %d eval prompts\n", len(flags), len(eval))
		}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	trainPath := filepath.Join(outputDir, "train.jsonl")
	evalPath := filepath.Join(outputDir, "eval.jsonl")
	if err := writeTriplets(trainPath, train); err != nil {
		return err
	}
	if err := writeTriplets(evalPath, eval); err != nil {
		return err
	}

	fmt.Printf("Wrote %d train triplets to %s\n", len(train), trainPath)
	fmt.Printf("Wrote %d eval triplets to %s\n", len(eval), evalPath)

	if render != "" {
		tmpl, err := chat.TemplateByName(render)
		if err != nil {
			return err
		}
		// An opened assistant turn belongs in the prompt side of a
		// rendered pair; the responses continue from it.
		if ml, ok := tmpl.(*chat.ChatML); ok {
			ml.AddGenerationPrompt = true
		}
		for _, split := range []struct {
			name     string
			triplets []dataset.Triplet
		}{
			{"train", train},
			{"eval", eval},
		} {
			path := filepath.Join(outputDir, fmt.Sprintf("%s.%s.jsonl", split.name, tmpl.Name()))
			if err := writeRenderedTriplets(path, split.triplets, tmpl); err != nil {
				return err
			}
			fmt.Printf("Wrote %d rendered %s triplets to %s\n", len(split.triplets), split.name, path)
		}
	}
	return nil
}

func runTrain(configPath, trainPath, evalPath, baseModel, runName string, beta float64, epochs int, noWait bool) error {
	cfg := loadConfig(configPath)
	ctx := context.Background()

	profile := tuningProfile(cfg, runName, baseModel, beta, epochs)
	client := trainer.New(cfg.Trainer.APIKey, cfg.Trainer.BaseURL)

	ctx, span := observability.StartTrainSpan(ctx, profile.BaseModel)
	defer span.End()
	started := time.Now()

	fmt.Printf("Uploading %s\n", trainPath)
	trainID, err := client.UploadDataset(ctx, trainPath)
	if err != nil {
		return err
	}
	fmt.Printf("Uploading %s\n", evalPath)
	evalID, err := client.UploadDataset(ctx, evalPath)
	if err != nil {
		return err
	}

	jobID, err := client.StartJob(ctx, profile, trainID, evalID)
	if err != nil {
		return err
	}
	fmt.Printf("Started job %s (base: %s, beta: %.2f, epochs: %d)\n",
		jobID, profile.BaseModel, profile.DPO.Beta, profile.DPO.Epochs)

	if noWait {
		fmt.Printf("Check progress with: quench train status (job %s)\n", jobID)
		return nil
	}

	st, err := client.Wait(ctx, jobID, pollInterval(cfg))
	observability.RecordTrainResult(span, jobID, st.Status, st.TunedModel, time.Since(started))
	if err != nil {
		return err
	}
	fmt.Printf("Job %s succeeded, tuned model: %s\n", st.ID, st.TunedModel)
	fmt.Printf("Merge the adapter with: quench merge --job %s\n", st.ID)
	return nil
}

func runMerge(configPath, jobID string) error {
	cfg := loadConfig(configPath)
	client := trainer.New(cfg.Trainer.APIKey, cfg.Trainer.BaseURL)

	res, err := client.Merge(context.Background(), jobID)
	if err != nil {
		return err
	}
	fmt.Printf("Merged model: %s\n", res.Model)
	if res.Path != "" {
		fmt.Printf("Weights path: %s\n", res.Path)
	}
	return nil
}

func runSample(configPath, baseModel, tunedModel, promptsPath string) error {
	cfg := loadConfig(configPath)
	factory := newFactory()

	base, err := providerForRole(factory, cfg, "base", baseModel)
	if err != nil {
		return err
	}
	tuned, err := providerForRole(factory, cfg, "tuned", tunedModel)
	if err != nil {
		return err
	}

	prompts := sample.DefaultPrompts(cfg.Dataset.DefaultSystem)
	if promptsPath != "" {
		prompts, err = promptsFromTriplets(promptsPath, 0)
		if err != nil {
			return err
		}
	}

	s := &sample.Sampler{Base: base, Tuned: tuned}
	pairs, err := s.Generate(context.Background(), prompts)
	if err != nil {
		return err
	}
	sample.Print(os.Stdout, pairs)
	return nil
}

func runJudge(configPath, baseModel, tunedModel, evalPath string, maxPrompts int, jsonReport, recordGraph bool) error {
	cfg := loadConfig(configPath)
	factory := newFactory()
	ctx := context.Background()

	base, err := providerForRole(factory, cfg, "base", baseModel)
	if err != nil {
		return err
	}
	tuned, err := providerForRole(factory, cfg, "tuned", tunedModel)
	if err != nil {
		return err
	}
	judgeProvider, err := providerForRole(factory, cfg, "judge", "")
	if err != nil {
		return err
	}

	prompts, err := promptsFromTriplets(evalPath, maxPrompts)
	if err != nil {
		return err
	}

	ctx, span := observability.StartJudgeSpan(ctx, len(prompts))
	defer span.End()

	j := judge.New(judgeProvider)
	report, err := j.Run(ctx, prompts, judge.Matchup{ModelA: tuned, ModelB: base})
	if err != nil {
		return err
	}
	observability.RecordJudgeResult(span, report.WinsA, report.WinsB, report.Ties, report.WinRateA())

	if jsonReport {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		printReport(report, tunedModel, baseModel)
	}

	if recordGraph {
		repo, err := lineageRepo(ctx, cfg)
		if err != nil {
			return err
		}
		if repo == nil {
			fmt.Fprintln(os.Stderr, "Warning: --record requested but lineage.uri is not configured")
			return nil
		}
		defer repo.Close(ctx)

		err = repo.RecordVerdict(ctx, lineage.Verdict{
			ModelA:   tunedModel,
			ModelB:   resolveBaseName(cfg, baseModel),
			WinRateA: report.WinRateA(),
			Prompts:  len(report.Outcomes),
		})
		if err != nil {
			return fmt.Errorf("record verdict: %w", err)
		}
	}
	return nil
}

func runPipeline(configPath, inputPath, outputDir, baseModel, runName string, checkContam bool) error {
	cfg := loadConfig(configPath)
	ctx := context.Background()

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:  "quench",
		Environment:  cfg.Tracing.Environment,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}
	defer tp.Shutdown(context.Background())

	fmt.Println("=== Prepare: extracting triplets ===")
	if err := runPrepare(configPath, inputPath, outputDir, false, cfg.Dataset.Workers,
		cfg.Dataset.LengthPercentile, checkContam, cfg.Dataset.EvalFraction, cfg.Dataset.Seed, ""); err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	trainPath := filepath.Join(outputDir, "train.jsonl")
	evalPath := filepath.Join(outputDir, "eval.jsonl")

	fmt.Println("\n=== Train: DPO fine-tuning ===")
	profile := tuningProfile(cfg, runName, baseModel, 0, 0)
	tc := trainer.New(cfg.Trainer.APIKey, cfg.Trainer.BaseURL)

	trainID, err := tc.UploadDataset(ctx, trainPath)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	evalID, err := tc.UploadDataset(ctx, evalPath)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	started := time.Now().UTC()
	jobID, err := tc.StartJob(ctx, profile, trainID, evalID)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	fmt.Printf("Job %s running\n", jobID)
	st, err := tc.Wait(ctx, jobID, pollInterval(cfg))
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	finished := time.Now().UTC()
	fmt.Printf("Job %s succeeded, adapter model: %s\n", st.ID, st.TunedModel)

	fmt.Println("\n=== Merge: folding adapter into base ===")
	merged, err := tc.Merge(ctx, jobID)
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	fmt.Printf("Merged model: %s\n", merged.Model)

	fmt.Println("\n=== Judge: tuned vs base ===")
	factory := newFactory()
	base, err := providerForRole(factory, cfg, "base", profile.BaseModel)
	if err != nil {
		return err
	}
	tuned, err := providerForRole(factory, cfg, "tuned", merged.Model)
	if err != nil {
		return err
	}
	judgeProvider, err := providerForRole(factory, cfg, "judge", "")
	if err != nil {
		return err
	}

	prompts, err := promptsFromTriplets(evalPath, 32)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		prompts = sample.DefaultPrompts(cfg.Dataset.DefaultSystem)
	}

	j := judge.New(judgeProvider)
	report, err := j.Run(ctx, prompts, judge.Matchup{ModelA: tuned, ModelB: base})
	if err != nil {
		return fmt.Errorf("judge: %w", err)
	}
	printReport(report, merged.Model, profile.BaseModel)

	repo, err := lineageRepo(ctx, cfg)
	if err != nil {
		return err
	}
	if repo != nil {
		defer repo.Close(ctx)
		train, err := readTriplets(trainPath)
		if err != nil {
			return err
		}
		run := lineage.Run{
			ID:         jobID,
			BaseModel:  profile.BaseModel,
			TunedModel: merged.Model,
			DatasetID:  trainID,
			Records:    len(train),
			StartedAt:  started,
			FinishedAt: finished,
		}
		if err := repo.RecordRun(ctx, run); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: lineage record failed: %v\n", err)
		} else if err := repo.RecordVerdict(ctx, lineage.Verdict{
			RunID:    jobID,
			ModelA:   merged.Model,
			ModelB:   profile.BaseModel,
			WinRateA: report.WinRateA(),
			Prompts:  len(report.Outcomes),
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: lineage record failed: %v\n", err)
		}
	}

	return nil
}

func runSubmit(configPath, inputPath, outputDir, baseModel string, checkContam bool) error {
	cfg := loadConfig(configPath)

	host := cfg.Temporal.Host
	if host == "" {
		host = client.DefaultHostPort
	}
	taskQueue := cfg.Temporal.TaskQueue
	if taskQueue == "" {
		taskQueue = "quench"
	}

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("connecting to Temporal: %w", err)
	}
	defer c.Close()

	input := temporal.FineTuneInput{
		DatasetPath:        inputPath,
		OutputDir:          outputDir,
		BaseModel:          baseModel,
		DefaultSystem:      cfg.Dataset.DefaultSystem,
		EvalFraction:       cfg.Dataset.EvalFraction,
		Seed:               cfg.Dataset.Seed,
		Workers:            cfg.Dataset.Workers,
		LengthPercentile:   cfg.Dataset.LengthPercentile,
		CheckContamination: checkContam,
	}

	run, err := c.ExecuteWorkflow(context.Background(), client.StartWorkflowOptions{
		ID:        "finetune-" + time.Now().UTC().Format("20060102-150405"),
		TaskQueue: taskQueue,
	}, temporal.FineTuneWorkflow, input)
	if err != nil {
		return fmt.Errorf("starting workflow: %w", err)
	}

	fmt.Printf("Started workflow %s (run %s)\n", run.GetID(), run.GetRunID())
	fmt.Println("Waiting for completion...")

	var out temporal.FineTuneOutput
	if err := run.Get(context.Background(), &out); err != nil {
		return err
	}
	fmt.Printf("Tuned model: %s (job %s, %d attempts)\n", out.TunedModel, out.JobID, out.Attempts)
	fmt.Printf("Win rate vs base: %.1f%% over %d train / %d eval records\n",
		out.WinRateA*100, out.TrainRecords, out.EvalRecords)
	return nil
}

func printReport(r *judge.Report, tuned, base string) {
	bold := color.New(color.Bold)
	bold.Printf("\n%s vs %s\n", tuned, base)
	fmt.Printf("  Wins (tuned): %d\n", r.WinsA)
	fmt.Printf("  Wins (base):  %d\n", r.WinsB)
	fmt.Printf("  Ties:         %d\n", r.Ties)

	rate := r.WinRateA()
	line := fmt.Sprintf("  Win rate:     %.1f%%", rate*100)
	switch {
	case rate > 0.5:
		color.Green(line)
	case rate < 0.5:
		color.Red(line)
	default:
		fmt.Println(line)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(os.Stderr, "  error: %s\n", e)
	}
}

func promptsFromTriplets(path string, limit int) ([]chat.Conversation, error) {
	triplets, err := readTriplets(path)
	if err != nil {
		return nil, err
	}
	var prompts []chat.Conversation
	for _, t := range triplets {
		prompts = append(prompts, t.Prompt)
		if limit > 0 && len(prompts) == limit {
			break
		}
	}
	return prompts, nil
}

func resolveBaseName(cfg *config.Config, baseModel string) string {
	if baseModel != "" {
		return baseModel
	}
	rc := cfg.LLM.ResolveForRole("base")
	return rc.Model
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
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

func writeRenderedTriplets(path string, triplets []dataset.Triplet, tmpl chat.Template) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := dataset.WriteRenderedJSONL(f, triplets, tmpl); err != nil {
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
