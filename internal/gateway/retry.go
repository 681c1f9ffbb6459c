// Package gateway holds the retry policy shared by outbound collaborator clients.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
)

// Counter is satisfied by prometheus.Counter.
type Counter interface {
	Inc()
}

// RetryConfig описывает политику повторов
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Retrier re-runs calls that failed with a network-class error.
type Retrier struct {
	cfg     RetryConfig
	logger  logx.Logger
	retries Counter
	wait    func(ctx context.Context, d time.Duration) bool
}

// NewRetrier creates a Retrier. retries may be nil.
func NewRetrier(cfg RetryConfig, logger logx.Logger, retries Counter) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Retrier{cfg: cfg, logger: logger, retries: retries, wait: sleepWithContext}
}

// Do calls fn until it succeeds, fails terminally or attempts run out.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		// проверяем условия повтора
		if ctx.Err() != nil || attempt == r.cfg.MaxAttempts || !Retryable(err) {
			break
		}
		delay := Backoff(r.cfg.BaseDelay, r.cfg.MaxDelay, attempt)
		if r.retries != nil {
			r.retries.Inc()
		}
		r.logger.Warn("gateway retry",
			logx.String("op", op),
			logx.Int("attempt", attempt),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
		if !r.wait(ctx, delay) {
			break
		}
	}
	return lastErr
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, apperr.ErrNetwork)
}

// Backoff returns base*2^(attempt-1) capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 32 {
		return max
	}
	d := base << (attempt - 1)
	if d > max {
		return max
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
