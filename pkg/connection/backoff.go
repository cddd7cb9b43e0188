package connection

import (
	"math/rand"
	"sync"
	"time"
)

// Default backoff parameters, used when BackoffConfig leaves a field zero.
const (
	DefaultRetryInterval = 1 * time.Second
	DefaultMaxBackoff = 60 * time.Second
	DefaultMultiplier = 2.0
)

// Backoff calculates bounded exponential backoff delays, optionally with
// jitter, per : delay_n = min(retry_interval * multiplier^n,
// max_backoff).
type Backoff struct {
	mu sync.Mutex

	current time.Duration // current base delay (before jitter)

	initial time.Duration
	max time.Duration
	multiplier float64
	jitter float64

	attempts int

	rng *rand.Rand
}

// BackoffConfig customizes backoff parameters. Zero fields fall back to
// DefaultRetryInterval / DefaultMaxBackoff / DefaultMultiplier / no jitter.
type BackoffConfig struct {
	Initial time.Duration
	Max time.Duration
	Multiplier float64
	Jitter float64
}

// NewBackoff creates a backoff calculator with the package defaults.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{})
}

// NewBackoffWithConfig creates a backoff calculator with custom settings.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = DefaultRetryInterval
	}
	if cfg.Max <= 0 {
		cfg.Max = DefaultMaxBackoff
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = DefaultMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	return &Backoff{
		current: cfg.Initial,
		initial: cfg.Initial,
		max: cfg.Max,
		multiplier: cfg.Multiplier,
		jitter: cfg.Jitter,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewBackoffFromMillis builds a Backoff directly from the millisecond
// fields DeviceSettings carries (retry_interval_ms, backoff_multiplier,
// max_backoff_time_ms), avoiding a dependency from this package on model.
func NewBackoffFromMillis(retryIntervalMs int64, multiplier float64, maxBackoffMs int64) *Backoff {
	return NewBackoffWithConfig(BackoffConfig{
		Initial: time.Duration(retryIntervalMs) * time.Millisecond,
		Max: time.Duration(maxBackoffMs) * time.Millisecond,
		Multiplier: multiplier,
	})
}

// Next returns the next backoff delay (with jitter) and advances the backoff.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.addJitter(b.current)

	b.attempts++
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return delay
}

// Peek returns the current backoff delay without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addJitter(b.current)
}

// Reset restores the backoff to its initial delay. Call after a successful
// connect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the current base backoff (without jitter).
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *Backoff) addJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	jitterAmount := time.Duration(float64(d) * b.jitter * b.rng.Float64())
	return d + jitterAmount
}
