package llm

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig bounds retries of transient failures.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
}

// Retrying retries Complete on errors that are not fatal, with exponential
// backoff. Context cancellation stops it immediately.
type Retrying struct {
	next   Client
	cfg    RetryConfig
	logger *logrus.Logger
}

func WithRetry(next Client, cfg RetryConfig, logger *logrus.Logger) *Retrying {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 300 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Retrying{next: next, cfg: cfg, logger: logger}
}

func (r *Retrying) Name() string { return r.next.Name() }

func (r *Retrying) Complete(ctx context.Context, p Prompt) (string, error) {
	var last error
	for i := 0; i < r.cfg.MaxAttempts; i++ {
		out, err := r.next.Complete(ctx, p)
		if err == nil {
			return out, nil
		}
		if IsFatal(err) {
			return "", err
		}
		last = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if i == r.cfg.MaxAttempts-1 {
			break
		}
		delay := r.delay(i)
		if r.logger != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"client":  r.next.Name(),
				"attempt": i + 1,
				"delay":   delay.String(),
			}).Warn("llm call failed, retrying")
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
	return "", last
}

func (r *Retrying) delay(attempt int) time.Duration {
	d := r.cfg.BaseDelay << attempt
	if d > r.cfg.MaxDelay || d <= 0 {
		d = r.cfg.MaxDelay
	}
	if r.cfg.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()))
	}
	return d
}
