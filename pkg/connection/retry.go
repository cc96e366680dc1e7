package connection

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Retry defaults.
const (
	DefaultMaxAttempts    = 50
	DefaultAttemptTimeout = 300 * time.Millisecond
)

// Connection errors.
var (
	ErrRetriesExhausted = errors.New("connection retries exhausted")
	ErrInvalidConfig    = errors.New("invalid retry config")
)

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no connection and no attempt yet.
	StateDisconnected State = iota

	// StateConnecting indicates an attempt is in progress.
	StateConnecting

	// StateConnected indicates an attempt succeeded.
	StateConnected

	// StateFailed indicates the attempt budget was spent or the caller
	// gave up.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// RetryConfig configures a Retrier.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (default: 50).
	MaxAttempts int

	// AttemptTimeout bounds each attempt (default: 300ms).
	AttemptTimeout time.Duration

	// Backoff is the delay between attempts. The zero value retries
	// immediately.
	Backoff BackoffConfig
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    DefaultMaxAttempts,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// Validate checks the configuration.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("%w: attempt timeout must be positive, got %v", ErrInvalidConfig, c.AttemptTimeout)
	}
	if c.Backoff.Initial < 0 {
		return fmt.Errorf("%w: retry delay must not be negative, got %v", ErrInvalidConfig, c.Backoff.Initial)
	}
	return nil
}

// AttemptFunc performs one attempt. ctx carries the attempt timeout.
// attempt starts at 1.
type AttemptFunc func(ctx context.Context, attempt int) error

// Retrier runs an AttemptFunc with a bounded number of attempts.
// A Retrier is meant for a single Do call.
type Retrier struct {
	config  RetryConfig
	backoff *Backoff
	state   State
	sleep   func(ctx context.Context, d time.Duration) error

	onStateChange func(oldState, newState State, attempt int)
	onAttemptFail func(attempt int, err error)
}

// NewRetrier creates a Retrier. Zero fields take their defaults.
func NewRetrier(config RetryConfig) *Retrier {
	if config.MaxAttempts == 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.AttemptTimeout == 0 {
		config.AttemptTimeout = DefaultAttemptTimeout
	}

	return &Retrier{
		config:  config,
		backoff: NewBackoff(config.Backoff),
		state:   StateDisconnected,
		sleep:   sleepContext,
	}
}

// OnStateChange registers a callback for state transitions.
func (r *Retrier) OnStateChange(fn func(oldState, newState State, attempt int)) {
	r.onStateChange = fn
}

// OnAttemptFailed registers a callback for failed attempts, including the
// last one.
func (r *Retrier) OnAttemptFailed(fn func(attempt int, err error)) {
	r.onAttemptFail = fn
}

// State returns the current state.
func (r *Retrier) State() State {
	return r.state
}

// Config returns the effective configuration.
func (r *Retrier) Config() RetryConfig {
	return r.config
}

// Do runs fn until it succeeds or the attempts are used up.
func (r *Retrier) Do(ctx context.Context, fn AttemptFunc) error {
	if err := r.config.Validate(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			r.setState(StateFailed, attempt)
			return err
		}

		r.setState(StateConnecting, attempt)

		attemptCtx, cancel := context.WithTimeout(ctx, r.config.AttemptTimeout)
		lastErr = fn(attemptCtx, attempt)
		cancel()

		if lastErr == nil {
			r.setState(StateConnected, attempt)
			r.backoff.Reset()
			return nil
		}

		if r.onAttemptFail != nil {
			r.onAttemptFail(attempt, lastErr)
		}

		if attempt < r.config.MaxAttempts {
			if delay := r.backoff.Next(); delay > 0 {
				if err := r.sleep(ctx, delay); err != nil {
					r.setState(StateFailed, attempt)
					return err
				}
			}
		}
	}

	r.setState(StateFailed, r.config.MaxAttempts)
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, r.config.MaxAttempts, lastErr)
}

func (r *Retrier) setState(s State, attempt int) {
	old := r.state
	if old == s {
		return
	}
	r.state = s
	if r.onStateChange != nil {
		r.onStateChange(old, s, attempt)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
