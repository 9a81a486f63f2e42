package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimitConfig configures client-side rate limiting.
type RateLimitConfig struct {
	// RequestsPerMinute limits API calls per minute (0 = unlimited).
	RequestsPerMinute int
	// TokensPerMinute limits total tokens per minute (0 = unlimited).
	TokensPerMinute int
	// BurstSize allows a short burst above the steady rate.
	BurstSize int
}

// DefaultRateLimitConfig returns conservative defaults that fit
// free-tier hosted endpoints.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 25,
		TokensPerMinute:   25000,
		BurstSize:         3,
	}
}

// RateLimitProvider wraps a provider with a token-bucket request limiter
// and a per-minute token budget.
type RateLimitProvider struct {
	inner  Provider
	config *RateLimitConfig

	mu          sync.Mutex
	requests    int       // available request tokens
	tokenBudget int       // remaining token budget in the window
	lastRefill  time.Time //
	windowStart time.Time
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	burst := config.BurstSize
	if burst <= 0 {
		burst = 1
	}
	now := time.Now()
	return &RateLimitProvider{
		inner:       inner,
		config:      config,
		requests:    burst,
		tokenBudget: config.TokensPerMinute,
		lastRefill:  now,
		windowStart: now,
	}
}

// WithRateLimit wraps provider when it is non-nil, otherwise passes nil
// through so LLM-free operation keeps working.
func WithRateLimit(provider Provider, config *RateLimitConfig) Provider {
	if provider == nil {
		return nil
	}
	return NewRateLimitProvider(provider, config)
}

func (r *RateLimitProvider) Name() string { return r.inner.Name() }

// Complete waits for rate-limit clearance, delegates, and charges the
// observed token usage against the window budget.
func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := r.inner.Complete(ctx, prompt, opts)
	if err == nil && resp != nil {
		r.charge(resp.InputTokens + resp.OutputTokens)
	}
	return resp, err
}

func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

func (r *RateLimitProvider) wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		okRequests := r.config.RequestsPerMinute == 0 || r.requests > 0
		okTokens := r.config.TokensPerMinute == 0 || r.tokenBudget > 0

		if okRequests && okTokens {
			if r.config.RequestsPerMinute > 0 {
				r.requests--
			}
			r.mu.Unlock()
			return nil
		}

		wait := r.waitTime()
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// refill adds request tokens for elapsed time and resets the token
// budget once the minute window rolls over. Callers hold r.mu.
func (r *RateLimitProvider) refill() {
	now := time.Now()

	if r.config.RequestsPerMinute > 0 {
		add := int(now.Sub(r.lastRefill).Minutes() * float64(r.config.RequestsPerMinute))
		if add > 0 {
			r.requests += add
			burst := r.config.BurstSize
			if burst <= 0 {
				burst = 1
			}
			if r.requests > burst {
				r.requests = burst
			}
			r.lastRefill = now
		}
	} else {
		r.lastRefill = now
	}

	if now.Sub(r.windowStart) >= time.Minute {
		r.windowStart = now
		r.tokenBudget = r.config.TokensPerMinute
	}
}

func (r *RateLimitProvider) charge(tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokenBudget -= tokens
	if r.tokenBudget < 0 {
		r.tokenBudget = 0
	}
}

func (r *RateLimitProvider) waitTime() time.Duration {
	if r.config.RequestsPerMinute > 0 && r.requests <= 0 {
		per := time.Minute / time.Duration(r.config.RequestsPerMinute)
		return per
	}
	if r.config.TokensPerMinute > 0 && r.tokenBudget <= 0 {
		remaining := time.Minute - time.Since(r.windowStart)
		if remaining > 0 {
			return remaining
		}
	}
	return 100 * time.Millisecond
}
