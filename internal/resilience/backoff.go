// Package resilience provides the retry policy used against the upstream
// quote source: bounded attempts, exponential backoff with random jitter and
// context-aware sleeping.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Rand is a concurrency-safe source of uniform floats in [0, 1).
type Rand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRand creates a Rand seeded with seed.
func NewRand(seed int64) *Rand {
	return &Rand{rng: rand.New(rand.NewSource(seed))}
}

// Float64 returns a pseudo-random number in [0, 1).
func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// Between returns a duration uniformly distributed in [min, max].
func (r *Rand) Between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(r.Float64()*float64(max-min))
}

// Backoff executes a function with bounded retries. The delay before retry
// number n (1-based) is 2^n * Base plus a uniform jitter in [0, Jitter).
type Backoff struct {
	MaxAttempts int
	Base        time.Duration
	Jitter      time.Duration
	MaxDelay    time.Duration

	// ShouldRetry decides whether an error is worth another attempt.
	// nil retries every error.
	ShouldRetry func(error) bool

	Sleep Sleeper
	Rand  *Rand
}

// DefaultBackoff returns three attempts with 1s, 2s, ... plus up to 500ms jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxAttempts: 3,
		Base:        500 * time.Millisecond,
		Jitter:      500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	delay := float64(b.Base) * math.Pow(2, float64(attempt))
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	d := time.Duration(delay)
	if b.Jitter > 0 {
		d += time.Duration(b.rand().Float64() * float64(b.Jitter))
	}
	return d
}

// Execute runs fn up to MaxAttempts times. fn receives the 1-based attempt
// number. It returns nil on the first success, the first non-retryable
// error, ctx.Err() if cancelled while waiting, or the last error once
// attempts are exhausted. No wait follows the final attempt.
func (b Backoff) Execute(ctx context.Context, fn func(attempt int) error) error {
	attempts := b.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if b.ShouldRetry != nil && !b.ShouldRetry(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		if err := b.sleeper()(ctx, b.Delay(attempt)); err != nil {
			return err
		}
	}

	return lastErr
}

func (b Backoff) sleeper() Sleeper {
	if b.Sleep != nil {
		return b.Sleep
	}
	return Sleep
}

var defaultRand = NewRand(time.Now().UnixNano())

func (b Backoff) rand() *Rand {
	if b.Rand != nil {
		return b.Rand
	}
	return defaultRand
}
