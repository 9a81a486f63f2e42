package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type flakyProvider struct {
	failures int
	calls    int
	err      error
}

func (f *flakyProvider) Complete(_ context.Context, _ *Prompt, _ *RequestOptions) (*Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return &Response{Content: "recovered"}, nil
}

func (f *flakyProvider) Embed(_ context.Context, _ []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return [][]float32{{1}}, nil
}

func (f *flakyProvider) Name() string { return "flaky" }

func fastRetry(max int) *RetryConfig {
	return &RetryConfig{
		MaxRetries: max,
		RetryDelay: time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Timeout:    time.Second,
	}
}

func TestRetry_RecoversFromServerError(t *testing.T) {
	inner := &flakyProvider{failures: 2, err: fmt.Errorf("503 Service Unavailable")}
	p := NewRetryProvider(inner, fastRetry(3))

	resp, err := p.Complete(context.Background(), &Prompt{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "recovered" {
		t.Fatalf("got %q", resp.Content)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetry_NonRetryableFailsFast(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: fmt.Errorf("401 Unauthorized")}
	p := NewRetryProvider(inner, fastRetry(5))

	_, err := p.Complete(context.Background(), &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Fatalf("auth errors must not be retried, got %d calls", inner.calls)
	}
}

func TestRetry_DailyTokenLimitNotRetried(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: fmt.Errorf("429 Too Many Requests: tokens per day exhausted")}
	p := NewRetryProvider(inner, fastRetry(5))

	_, err := p.Complete(context.Background(), &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Fatalf("TPD errors must not be retried, got %d calls", inner.calls)
	}
}

func TestRetry_ExhaustsAndReportsLastError(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: fmt.Errorf("500 Internal Server Error")}
	p := NewRetryProvider(inner, fastRetry(2))

	_, err := p.Complete(context.Background(), &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: fmt.Errorf("503 Service Unavailable")}
	p := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: 5,
		RetryDelay: time.Hour, // would block forever without cancellation
		MaxDelay:   time.Hour,
		Timeout:    time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Complete(ctx, &Prompt{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRetry_EmbedRetries(t *testing.T) {
	inner := &flakyProvider{failures: 1, err: fmt.Errorf("502 Bad Gateway")}
	p := NewRetryProvider(inner, fastRetry(2))

	vecs, err := p.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 1 {
		t.Fatalf("got %d vectors", len(vecs))
	}
}

func TestBackoff_Caps(t *testing.T) {
	p := NewRetryProvider(&flakyProvider{}, &RetryConfig{
		RetryDelay: time.Second,
		MaxDelay:   4 * time.Second,
	})
	if d := p.backoff(1); d != time.Second {
		t.Fatalf("attempt 1: %v", d)
	}
	if d := p.backoff(2); d != 2*time.Second {
		t.Fatalf("attempt 2: %v", d)
	}
	if d := p.backoff(10); d != 4*time.Second {
		t.Fatalf("attempt 10 should cap at MaxDelay, got %v", d)
	}
}
