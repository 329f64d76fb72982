package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		AddJitter:    false, // Disable for predictable tests
	}

	assert.Equal(t, 100*time.Millisecond, b.Delay(0))
	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 400*time.Millisecond, b.Delay(3))
	assert.Equal(t, 800*time.Millisecond, b.Delay(4))
	assert.Equal(t, time.Second, b.Delay(5))
	assert.Equal(t, time.Second, b.Delay(1000))
}

func TestBackoff_Jitter(t *testing.T) {
	b := Backoff{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}

	for i := 0; i < 100; i++ {
		d := b.Delay(2)
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.Less(t, d, 250*time.Millisecond)
	}
}

func TestBackoff_HugeMultiplier(t *testing.T) {
	b := Backoff{InitialDelay: time.Millisecond, MaxDelay: time.Hour, Multiplier: 1e9}
	assert.Equal(t, time.Second, b.Delay(2))
	assert.Equal(t, time.Hour, b.Delay(100))
}

func TestBackoff_Validate(t *testing.T) {
	assert.NoError(t, DefaultBackoff().Validate())

	tests := []struct {
		name string
		b    Backoff
	}{
		{"zero initial delay", Backoff{MaxDelay: time.Second, Multiplier: 2}},
		{"max below initial", Backoff{InitialDelay: time.Second, MaxDelay: time.Millisecond, Multiplier: 2}},
		{"shrinking multiplier", Backoff{InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.b.Validate())
		})
	}
}

func TestBackoff_Func(t *testing.T) {
	b := DefaultBackoff()
	fn := b.Func()
	assert.Equal(t, b.Delay(3), fn(3))
}
