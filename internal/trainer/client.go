package trainer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Statuses reported by the fine-tuning API.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Client talks to a fine-tuning server that implements the OpenAI files
// and fine-tuning endpoints plus two vendor extensions: tuning profiles
// and adapter merges.
type Client struct {
	api     *openai.Client
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a trainer client for the given endpoint.
func New(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(cfg),
		baseURL: cfg.BaseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// UploadDataset uploads a triplet JSONL file and returns its file ID.
func (c *Client) UploadDataset(ctx context.Context, path string) (string, error) {
	f, err := c.api.CreateFile(ctx, openai.FileRequest{
		FileName: path,
		FilePath: path,
		Purpose:  "fine-tune",
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	return f.ID, nil
}

// StartJob registers the tuning profile, then creates the fine-tuning
// job referencing it by suffix. Returns the job ID.
func (c *Client) StartJob(ctx context.Context, profile TuningProfile, trainFileID, evalFileID string) (string, error) {
	if err := c.registerProfile(ctx, profile); err != nil {
		return "", err
	}

	req := openai.FineTuningJobRequest{
		Model:          profile.BaseModel,
		TrainingFile:   trainFileID,
		ValidationFile: evalFileID,
		Hyperparameters: &openai.Hyperparameters{
			Epochs:                 profile.DPO.Epochs,
			LearningRateMultiplier: profile.DPO.LearningRate,
			BatchSize:              profile.DPO.BatchSize,
		},
		Suffix: profile.Name,
	}
	job, err := c.api.CreateFineTuningJob(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	return job.ID, nil
}

// JobStatus is a point-in-time view of a running job.
type JobStatus struct {
	ID         string
	Status     string
	TunedModel string // set once the job succeeds
}

// Terminal reports whether the job has finished, in any outcome.
func (s JobStatus) Terminal() bool {
	switch s.Status {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Status fetches the current job state.
func (c *Client) Status(ctx context.Context, jobID string) (JobStatus, error) {
	job, err := c.api.RetrieveFineTuningJob(ctx, jobID)
	if err != nil {
		return JobStatus{}, fmt.Errorf("retrieve job %s: %w", jobID, err)
	}
	return JobStatus{ID: job.ID, Status: job.Status, TunedModel: job.FineTunedModel}, nil
}

// Wait polls the job until it reaches a terminal state or ctx ends.
func (c *Client) Wait(ctx context.Context, jobID string, interval time.Duration) (JobStatus, error) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := c.Status(ctx, jobID)
		if err != nil {
			return JobStatus{}, err
		}
		if st.Terminal() {
			if st.Status != StatusSucceeded {
				return st, fmt.Errorf("job %s ended with status %s", jobID, st.Status)
			}
			return st, nil
		}

		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cancel aborts a running job.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	if _, err := c.api.CancelFineTuningJob(ctx, jobID); err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	return nil
}

// MergeResult reports where the merged weights were written.
type MergeResult struct {
	Model string `json:"model"`
	Path  string `json:"path,omitempty"`
}

// Merge asks the server to fold the job's LoRA adapter into the base
// weights, producing a standalone model the inference server can load.
func (c *Client) Merge(ctx context.Context, jobID string) (*MergeResult, error) {
	var out MergeResult
	if err := c.postJSON(ctx, "/adapters/merge", map[string]string{"job_id": jobID}, &out); err != nil {
		return nil, fmt.Errorf("merge adapter for %s: %w", jobID, err)
	}
	return &out, nil
}

// registerProfile ships the DPO/LoRA/quantization settings the standard
// fine-tuning request has no fields for.
func (c *Client) registerProfile(ctx context.Context, profile TuningProfile) error {
	if err := c.postJSON(ctx, "/fine_tuning/profiles", profile, nil); err != nil {
		return fmt.Errorf("register profile %q: %w", profile.Name, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s: %s", path, resp.Status, respBody)
	}
	if out != nil {
		return json.Unmarshal(respBody, out)
	}
	return nil
}
