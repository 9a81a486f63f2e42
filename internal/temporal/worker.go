package temporal

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// StartWorker creates and starts a Temporal worker.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(FineTuneWorkflow)
	w.RegisterActivity(PrepareActivity)
	w.RegisterActivity(ContaminationActivity)
	w.RegisterActivity(TrainActivity)
	w.RegisterActivity(MergeActivity)
	w.RegisterActivity(BenchmarkActivity)
	w.RegisterActivity(RecordLineageActivity)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}
