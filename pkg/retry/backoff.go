package retry

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Backoff describes an exponential delay schedule
type Backoff struct {
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Upper bound for any delay
	Multiplier   float64       // Growth per attempt (typically 2.0)
	AddJitter    bool          // Add up to 25% randomness to prevent thundering herd
}

// DefaultBackoff returns sensible defaults for reconnect schedules
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Validate checks that the schedule is usable
func (b Backoff) Validate() error {
	if b.InitialDelay <= 0 {
		return fmt.Errorf("retry: InitialDelay must be positive, got %v", b.InitialDelay)
	}
	if b.MaxDelay < b.InitialDelay {
		return fmt.Errorf("retry: MaxDelay must be >= InitialDelay (%v < %v)", b.MaxDelay, b.InitialDelay)
	}
	if b.Multiplier < 1 {
		return fmt.Errorf("retry: Multiplier must be >= 1, got %v", b.Multiplier)
	}
	return nil
}

// Delay returns the delay before the given attempt, counting from 1.
// Attempts below 1 are treated as the first attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	multiplier := b.Multiplier
	// Prevent overflow with extremely large multipliers
	if multiplier > 1000 {
		multiplier = 1000
	}

	delay := float64(b.InitialDelay)
	for i := 1; i < attempt && delay < float64(b.MaxDelay); i++ {
		delay *= multiplier
	}
	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}

	result := time.Duration(delay)
	if b.AddJitter && result >= 4 {
		randMu.Lock()
		jitter := time.Duration(randSource.Int63n(int64(result / 4)))
		randMu.Unlock()
		result += jitter
	}
	return result
}

// Func returns Delay as a plain function, the shape client libraries take
// for custom reconnect delays
func (b Backoff) Func() func(attempt int) time.Duration {
	return b.Delay
}
