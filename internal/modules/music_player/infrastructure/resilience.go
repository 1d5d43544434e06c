package infrastructure

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
	"github.com/sony/gobreaker"
)

// RetryConfig bounds retries of calls to external services.
type RetryConfig struct {
	RetryMax       int
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration
	RequestTimeout time.Duration
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		RetryMax:       3,
		RetryWaitMin:   200 * time.Millisecond,
		RetryWaitMax:   2 * time.Second,
		RequestTimeout: 15 * time.Second,
	}
}

// NewHTTPClient returns a retrying HTTP client for metadata and catalog APIs.
func NewHTTPClient(cfg RetryConfig) *http.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.HTTPClient.Timeout = cfg.RequestTimeout
	client.Logger = slog.Default()
	return client.StandardClient()
}

// Resilient runs calls to one external service through a circuit breaker
// and a bounded retry loop.
type Resilient struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	cfg     RetryConfig
	backoff retryablehttp.Backoff
	sleep   func(context.Context, time.Duration) error
}

// NewResilient creates a Resilient for the named service.
func NewResilient(name string, cfg RetryConfig) *Resilient {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker changed state",
				"service", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &Resilient{
		name:    name,
		breaker: gobreaker.NewCircuitBreaker(settings),
		cfg:     cfg,
		backoff: retryablehttp.DefaultBackoff,
		sleep:   sleepContext,
	}
}

// Execute runs fn until it succeeds, fails permanently, or the retries are
// exhausted.
func (r *Resilient) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, r.withRetry(ctx, fn)
	})
	return err
}

func (r *Resilient) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.RetryMax; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if isPermanent(err) || attempt == r.cfg.RetryMax {
			break
		}

		wait := r.backoff(r.cfg.RetryWaitMin, r.cfg.RetryWaitMax, attempt, nil)
		slog.Warn("retrying external call",
			"service", r.name,
			"attempt", attempt+1,
			"wait", wait,
			"error", err,
		)
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

// isPermanent reports whether err must not be retried.
func isPermanent(err error) bool {
	return errors.Is(err, ports.ErrNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
