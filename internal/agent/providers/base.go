package providers

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/haasonsaas/nexus/internal/backoff"
)

// encodeBase64 is a shared helper for adapters that must ship image bytes as
// base64 strings over their wire protocol.
func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// BaseProvider holds shared retry configuration for LLM providers.
type BaseProvider struct {
	name       string
	maxRetries int
	policy     backoff.BackoffPolicy
}

// NewBaseProvider creates a base provider with sane defaults. retryDelay
// seeds the exponential policy's initial delay; retries after that grow by
// backoff.DefaultPolicy's factor with jitter rather than linearly.
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	policy := backoff.DefaultPolicy()
	policy.InitialMs = float64(retryDelay.Milliseconds())
	return BaseProvider{
		name:       name,
		maxRetries: maxRetries,
		policy:     policy,
	}
}

// Retry executes op with exponential backoff if isRetryable returns true.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}
	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := op(); err == nil {
			return nil
		} else {
			lastErr = err
			if isRetryable == nil || !isRetryable(err) {
				return err
			}
			if attempt >= b.maxRetries {
				break
			}
			if err := backoff.SleepWithBackoff(ctx, b.policy, attempt); err != nil {
				return err
			}
		}
	}
	return lastErr
}
