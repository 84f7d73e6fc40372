package retry

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/ticketsync/ticketsync/pkg/apperrors"
)

// Config defines retry behavior. A Multiplier of 1 gives a fixed interval.
// A negative MaxRetries retries forever.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0
}

// DefaultConfig returns sensible defaults for database connection attempts
// 3 retries with 500ms initial delay, capped at 5s, doubling each time, with 10% jitter
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// Fixed returns a policy that makes at most attempts calls spaced by interval.
// attempts <= 0 means no limit.
func Fixed(interval time.Duration, attempts int) *Config {
	return &Config{
		MaxRetries:   attempts - 1,
		InitialDelay: interval,
		MaxDelay:     interval,
		Multiplier:   1.0,
	}
}

// Unbounded reports whether the policy never gives up.
func (c *Config) Unbounded() bool {
	return c.MaxRetries < 0
}

func (c *Config) more(attempt int) bool {
	return c.Unbounded() || attempt < c.MaxRetries
}

func (c *Config) next(delay time.Duration) time.Duration {
	if c.Multiplier <= 1 {
		return delay
	}
	delay = time.Duration(float64(delay) * c.Multiplier)
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// applyJitter adds random jitter to a delay.
// Jitter is calculated as: delay +/- (delay * jitterFactor * random(-1 to +1))
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

func wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DoIfRetryable only retries if the error is transient.
// For permanent errors (auth failures, bad SQL, etc.), it returns immediately.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	delay := cfg.InitialDelay
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || !cfg.more(attempt) {
			return err
		}
		if err := wait(ctx, applyJitter(delay, cfg.JitterFactor)); err != nil {
			return err
		}
		delay = cfg.next(delay)
	}
}

// Poll calls check until it reports done, returns an error, or the policy is
// exhausted. An error from check is returned as-is without further attempts.
// Exhaustion yields an error wrapping apperrors.ErrTimeout.
func Poll(ctx context.Context, cfg *Config, check func() (bool, error)) error {
	return PollWithWake(ctx, cfg, nil, check)
}

// PollWithWake is Poll where a receive on wake cuts the current wait short.
// Early wake-ups still count as attempts. A nil wake channel never fires.
func PollWithWake(ctx context.Context, cfg *Config, wake <-chan struct{}, check func() (bool, error)) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	delay := cfg.InitialDelay
	for attempt := 0; ; attempt++ {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !cfg.more(attempt) {
			return fmt.Errorf("%w after %d attempts", apperrors.ErrTimeout, attempt+1)
		}
		if err := waitOrWake(ctx, applyJitter(delay, cfg.JitterFactor), wake); err != nil {
			return err
		}
		delay = cfg.next(delay)
	}
}

func waitOrWake(ctx context.Context, delay time.Duration, wake <-chan struct{}) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRetryable determines if an error is transient and worth retrying.
// Errors may declare retryability by implementing IsRetryable() bool; otherwise
// the message is matched against known connectivity failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	type retryable interface {
		IsRetryable() bool
	}
	if r, ok := err.(retryable); ok {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"timed out",
		"temporary failure",
		"too many connections",
		"the database system is starting up",
		"network is unreachable",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
