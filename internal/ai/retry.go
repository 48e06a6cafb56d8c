package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// WrapRetryToEmbedder retries transient failures with a constant delay, up to
// attempts calls in total. Other failures are returned at once.
func WrapRetryToEmbedder(e IEmbedder, attempts int, delay time.Duration) IEmbedder {
	if e == nil || attempts <= 1 {
		return e
	}
	if delay <= 0 {
		delay = time.Millisecond
	}
	return &retryEmbedder{next: e, attempts: attempts, delay: delay}
}

type retryEmbedder struct {
	next     IEmbedder
	attempts int
	delay    time.Duration
}

func (r *retryEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	backoff := retry.WithMaxRetries(uint64(r.attempts-1), retry.NewConstant(r.delay))
	attempt := 0
	res, err := retry.DoValue(ctx, backoff, func(ctx context.Context) ([]float32, error) {
		attempt++
		res, err := r.next.Embed(ctx, text, taskType)
		if err == nil {
			return res, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		logutil.GetLogger(ctx).Warn("embedding attempt failed",
			zap.String("model", r.next.ModelName()),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.attempts),
			zap.Error(err))
		return nil, retry.RetryableError(err)
	})
	if err == nil {
		return res, nil
	}
	if IsTransient(err) {
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrProviderUnavailable, attempt, err)
	}
	return nil, err
}

func (r *retryEmbedder) ModelName() string {
	return r.next.ModelName()
}

// WrapTimeoutToEmbedder bounds every call to e by d.
func WrapTimeoutToEmbedder(e IEmbedder, d time.Duration) IEmbedder {
	if e == nil || d <= 0 {
		return e
	}
	return &timeoutEmbedder{next: e, timeout: d}
}

type timeoutEmbedder struct {
	next    IEmbedder
	timeout time.Duration
}

func (t *timeoutEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	res, err := t.next.Embed(ctx, text, taskType)
	if err != nil && parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		// only this attempt timed out; the caller may still retry
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return res, err
}

func (t *timeoutEmbedder) ModelName() string {
	return t.next.ModelName()
}
