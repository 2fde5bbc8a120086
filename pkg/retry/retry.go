// Package retry provides retry logic with exponential backoff for GalleryFS transport operations.
package retry

import (
	"context"
	stderr "errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/galleryfs/galleryfs/pkg/errors"
)

// Config defines retry behavior configuration.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the initial attempt).
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`

	// Multiplier is the factor by which delay increases after each retry.
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`

	// Jitter is the upper bound of the random delay added to each backoff.
	Jitter time.Duration `yaml:"jitter" json:"jitter"`

	// RateLimitMargin is added to a server-advertised retry-after value so a
	// retry never lands just inside the throttling window.
	RateLimitMargin time.Duration `yaml:"rate_limit_margin" json:"rate_limit_margin"`

	// RetryableErrors is a list of error codes that should trigger retry.
	RetryableErrors []errors.ErrorCode `yaml:"retryable_errors" json:"retryable_errors"`

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-"`
}

// DefaultConfig returns the retry configuration used by the image-host
// adapter: up to 2 retries with a 1 second base doubling each attempt.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialDelay:    time.Second,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		Jitter:          time.Second,
		RateLimitMargin: time.Second,
		RetryableErrors: []errors.ErrorCode{
			errors.ErrCodeNetworkError,
			errors.ErrCodeConnectionTimeout,
			errors.ErrCodeServerError,
			errors.ErrCodeRateLimited,
		},
	}
}

// Retryer handles retry logic with exponential backoff and rate-limit
// awareness.
type Retryer struct {
	config Config
}

// New creates a new Retryer with the given configuration.
func New(config Config) *Retryer {
	// Apply defaults for zero values
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.RateLimitMargin <= 0 {
		config.RateLimitMargin = time.Second
	}

	return &Retryer{config: config}
}

// Do executes the given function with retry logic.
func (r *Retryer) Do(fn func() error) error {
	return r.DoWithContext(context.Background(), func(ctx context.Context) error {
		return fn()
	})
}

// DoWithContext executes the given function with retry logic and context support.
func (r *Retryer) DoWithContext(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return errors.Wrap(errors.ErrCodeOperationCanceled, "operation canceled", ctx.Err())
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if !r.shouldRetry(err) {
			return err
		}

		if attempt < r.config.MaxAttempts {
			delay := r.delayFor(err, attempt)

			if r.config.OnRetry != nil {
				r.config.OnRetry(attempt, err, delay)
			}

			select {
			case <-ctx.Done():
				return errors.Wrap(errors.ErrCodeOperationCanceled,
					fmt.Sprintf("operation canceled after %d attempts", attempt), ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return errors.Wrap(errors.ErrCodeRetryExhausted,
		fmt.Sprintf("max retry attempts (%d) exceeded", r.config.MaxAttempts), lastErr)
}

// shouldRetry determines if an error is retryable. Authentication failures
// are never retried regardless of configuration. The attempt budget is the
// loop's concern: a retryable error on the final attempt falls through to the
// exhaustion wrap.
func (r *Retryer) shouldRetry(err error) bool {
	if errors.IsAuthRequired(err) {
		return false
	}

	var gerr *errors.GalleryError
	if stderr.As(err, &gerr) {
		if gerr.Retryable {
			return true
		}
		for _, code := range r.config.RetryableErrors {
			if gerr.Code == code {
				return true
			}
		}
	}

	return false
}

// delayFor calculates the delay before the next attempt. Rate-limit errors
// honor the server's advertised retry-after plus a safety margin; without an
// advertised value a randomized 10-12 second delay is used.
func (r *Retryer) delayFor(err error, attempt int) time.Duration {
	var gerr *errors.GalleryError
	if stderr.As(err, &gerr) && gerr.Code == errors.ErrCodeRateLimited {
		if gerr.RetryAfter > 0 {
			return gerr.RetryAfter + r.config.RateLimitMargin
		}
		return 10*time.Second + time.Duration(rand.Int63n(int64(2*time.Second)))
	}

	return r.backoff(attempt)
}

// backoff computes exponential backoff with additive jitter.
func (r *Retryer) backoff(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	if r.config.Jitter > 0 {
		delay += float64(rand.Int63n(int64(r.config.Jitter)))
	}

	return time.Duration(delay)
}

// WithMaxAttempts returns a new Retryer with modified max attempts.
func (r *Retryer) WithMaxAttempts(attempts int) *Retryer {
	newConfig := r.config
	newConfig.MaxAttempts = attempts
	return New(newConfig)
}

// WithOnRetry returns a new Retryer with a retry callback.
func (r *Retryer) WithOnRetry(callback func(attempt int, err error, delay time.Duration)) *Retryer {
	newConfig := r.config
	newConfig.OnRetry = callback
	return New(newConfig)
}

// RetryWithBackoff is a convenience function for simple retry scenarios.
func RetryWithBackoff(ctx context.Context, maxAttempts int, fn func() error) error {
	retryer := New(DefaultConfig())
	retryer.config.MaxAttempts = maxAttempts
	return retryer.DoWithContext(ctx, func(ctx context.Context) error {
		return fn()
	})
}
