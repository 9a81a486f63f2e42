package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/efebarandurmaz/quench/internal/config"
	"github.com/efebarandurmaz/quench/internal/lineage"
	lineageneo4j "github.com/efebarandurmaz/quench/internal/lineage/neo4j"
	"github.com/efebarandurmaz/quench/internal/llm"
	"github.com/efebarandurmaz/quench/internal/llm/openai"
	"github.com/efebarandurmaz/quench/internal/observability"
	"github.com/efebarandurmaz/quench/internal/server"
	temporalmod "github.com/efebarandurmaz/quench/internal/temporal"
	"github.com/efebarandurmaz/quench/internal/trainer"
	"github.com/efebarandurmaz/quench/internal/vector"
	vectorqdrant "github.com/efebarandurmaz/quench/internal/vector/qdrant"

	temporalclient "go.temporal.io/sdk/client"
)

func main() {
	configPath := "configs/quench.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:  "quench-worker",
		Environment:  cfg.Tracing.Environment,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	factory := llm.NewFactory()
	llm.RegisterDefaults(factory, func(apiKey, model, baseURL, embedModel string) llm.Provider {
		return openai.New(apiKey, model, baseURL, embedModel)
	})

	judgeCfg := cfg.LLM.ResolveForRole("judge")
	judgePC := llm.DefaultProviderConfig()
	judgePC.Provider = judgeCfg.Provider
	judgePC.APIKey = judgeCfg.APIKey
	judgePC.Model = judgeCfg.Model
	judgePC.BaseURL = judgeCfg.BaseURL
	judgeProvider, err := factory.Create(judgePC)
	if err != nil {
		log.Fatalf("creating judge provider: %v", err)
	}
	if judgeProvider == nil {
		log.Fatal("no judge provider configured; set llm.provider or llm.roles.judge")
	}
	judgeProvider = llm.WithRateLimit(judgeProvider, llm.DefaultRateLimitConfig())

	// Inference providers are built per model name at benchmark time; the
	// model under test is not known until a job finishes.
	inferenceCfg := cfg.LLM.ResolveForRole("tuned")
	providerForModel := func(model string) (llm.Provider, error) {
		pc := llm.DefaultProviderConfig()
		pc.Provider = inferenceCfg.Provider
		pc.APIKey = inferenceCfg.APIKey
		pc.BaseURL = inferenceCfg.BaseURL
		pc.Model = model
		p, err := factory.Create(pc)
		if err != nil {
			return nil, fmt.Errorf("provider for model %s: %w", model, err)
		}
		if p == nil {
			return nil, fmt.Errorf("no inference provider configured for model %s; set llm.provider", model)
		}
		return p, nil
	}

	// Optional backends.
	var checker *vector.Checker
	var qdrantRepo *vectorqdrant.Repository
	if cfg.Vector.Host != "" {
		embedCfg := cfg.LLM.ResolveForRole("embed")
		embedPC := llm.DefaultProviderConfig()
		embedPC.Provider = embedCfg.Provider
		embedPC.APIKey = embedCfg.APIKey
		embedPC.Model = embedCfg.Model
		embedPC.BaseURL = embedCfg.BaseURL
		embedPC.EmbedModel = cfg.LLM.EmbedModel
		embedder, err := factory.Create(embedPC)
		if err != nil {
			log.Fatalf("creating embed provider: %v", err)
		}

		collection := cfg.Vector.Collection
		if collection == "" {
			collection = "quench-prompts"
		}
		qdrantRepo, err = vectorqdrant.New(ctx, cfg.Vector.Host, cfg.Vector.Port, collection)
		if err != nil {
			log.Fatalf("qdrant: %v", err)
		}
		checker = vector.NewChecker(embedder, qdrantRepo, cfg.Vector.Threshold)
	}

	var lineageStore lineage.Repository
	if cfg.Lineage.URI != "" {
		lineageStore, err = lineageneo4j.New(ctx, cfg.Lineage.URI, cfg.Lineage.Username, cfg.Lineage.Password)
		if err != nil {
			log.Fatalf("neo4j: %v", err)
		}
	}

	var pollInterval time.Duration
	if cfg.Trainer.PollInterval != "" {
		pollInterval, err = time.ParseDuration(cfg.Trainer.PollInterval)
		if err != nil {
			log.Fatalf("bad trainer poll_interval %q: %v", cfg.Trainer.PollInterval, err)
		}
	}

	temporalmod.SetDependencies(&temporalmod.Dependencies{
		Trainer: trainer.New(cfg.Trainer.APIKey, cfg.Trainer.BaseURL),
		Profile: trainer.TuningProfile{
			Name:      "dpo",
			BaseModel: cfg.Trainer.BaseModel,
			DPO:       trainer.DefaultDPOConfig(),
			LoRA:      trainer.DefaultLoRAConfig(),
			Quant:     trainer.DefaultQuantConfig(),
			HubToken:  cfg.Trainer.HubToken,
		},
		Judge:            judgeProvider,
		ProviderForModel: providerForModel,
		Checker:          checker,
		Lineage:          lineageStore,
		PollInterval:     pollInterval,
	})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}

	taskQueue := cfg.Temporal.TaskQueue
	if taskQueue == "" {
		taskQueue = "quench"
	}
	w, err := temporalmod.StartWorker(c, taskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	fmt.Printf("Worker started on task queue: %s\n", taskQueue)

	g := server.NewGracefulServer("0.1.0", server.DefaultShutdownConfig())
	g.Health.RegisterCheck("temporal", server.PingHealthChecker("temporal", func(ctx context.Context) error {
		_, err := c.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
		return err
	}))
	g.Health.RegisterCheck("judge", server.ProviderHealthChecker(judgeProvider.Name(), nil))

	g.RegisterHook("temporal-worker", 20, func(ctx context.Context) error {
		w.Stop()
		return nil
	})
	g.RegisterHook("temporal-client", 30, func(ctx context.Context) error {
		c.Close()
		return nil
	})
	if qdrantRepo != nil {
		g.RegisterHook("qdrant", 90, func(ctx context.Context) error {
			return qdrantRepo.Close()
		})
	}
	if lineageStore != nil {
		g.RegisterHook("neo4j", 90, func(ctx context.Context) error {
			return lineageStore.Close(ctx)
		})
	}
	g.RegisterHook("tracing", 95, tp.Shutdown)

	g.Start(":8080")
	g.Wait()
	fmt.Println("Worker stopped")
}
