// Package neo4j implements lineage.Repository on Neo4j.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/quench/internal/lineage"
)

// Repository is a Neo4j-backed lineage store.
type Repository struct {
	driver neo4j.DriverWithContext
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, uri, username, password string) (*Repository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Repository{driver: driver}, nil
}

func (r *Repository) RecordRun(ctx context.Context, run lineage.Run) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			"MERGE (d:Dataset {id: $dataset}) "+
				"MERGE (b:Model {name: $base}) "+
				"MERGE (t:Model {name: $tuned}) "+
				"MERGE (r:Run {id: $run}) "+
				"SET r.records = $records, r.started_at = $started, r.finished_at = $finished "+
				"MERGE (r)-[:TRAINED_ON]->(d) "+
				"MERGE (r)-[:FROM_BASE]->(b) "+
				"MERGE (r)-[:PRODUCED]->(t)",
			map[string]any{
				"run":      run.ID,
				"dataset":  run.DatasetID,
				"base":     run.BaseModel,
				"tuned":    run.TunedModel,
				"records":  run.Records,
				"started":  run.StartedAt.Format(time.RFC3339),
				"finished": run.FinishedAt.Format(time.RFC3339),
			})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

func (r *Repository) RecordVerdict(ctx context.Context, v lineage.Verdict) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			"MERGE (a:Model {name: $a}) "+
				"MERGE (b:Model {name: $b}) "+
				"MERGE (a)-[j:JUDGED_AGAINST {run_id: $run}]->(b) "+
				"SET j.win_rate_a = $rate, j.prompts = $prompts",
			map[string]any{
				"a": v.ModelA, "b": v.ModelB,
				"run": v.RunID, "rate": v.WinRateA, "prompts": v.Prompts,
			})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("record verdict for run %s: %w", v.RunID, err)
	}
	return nil
}

func (r *Repository) RunsForModel(ctx context.Context, tunedModel string) ([]lineage.Run, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (r:Run)-[:PRODUCED]->(t:Model {name: $tuned}) "+
				"MATCH (r)-[:FROM_BASE]->(b:Model) "+
				"MATCH (r)-[:TRAINED_ON]->(d:Dataset) "+
				"RETURN r.id, r.records, b.name, d.id",
			map[string]any{"tuned": tunedModel})
		if err != nil {
			return nil, err
		}

		var runs []lineage.Run
		for records.Next(ctx) {
			rec := records.Record()
			id, _ := rec.Get("r.id")
			count, _ := rec.Get("r.records")
			base, _ := rec.Get("b.name")
			ds, _ := rec.Get("d.id")

			run := lineage.Run{TunedModel: tunedModel}
			if s, ok := id.(string); ok {
				run.ID = s
			}
			if n, ok := count.(int64); ok {
				run.Records = int(n)
			}
			if s, ok := base.(string); ok {
				run.BaseModel = s
			}
			if s, ok := ds.(string); ok {
				run.DatasetID = s
			}
			runs = append(runs, run)
		}
		return runs, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("runs for %s: %w", tunedModel, err)
	}
	return result.([]lineage.Run), nil
}

func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ lineage.Repository = (*Repository)(nil)
