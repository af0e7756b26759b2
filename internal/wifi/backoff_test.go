package wifi

import (
	"testing"
	"time"
)

func TestBackoffBaseProgression(t *testing.T) {
	b := Backoff{
		Initial:    1000 * time.Millisecond,
		Multiplier: 2,
		Max:        60000 * time.Millisecond,
		JitterMax:  500 * time.Millisecond,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 2000 * time.Millisecond},
		{2, 4000 * time.Millisecond},
		{5, 32000 * time.Millisecond},
		{6, 60000 * time.Millisecond}, // 64s clamped to cap
		{10, 60000 * time.Millisecond},
		{100, 60000 * time.Millisecond}, // far past the exponent cap
	}

	for _, tt := range tests {
		if got := b.Base(tt.attempt); got != tt.want {
			t.Errorf("Base(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := Backoff{
		Initial:    1000 * time.Millisecond,
		Multiplier: 2,
		Max:        60000 * time.Millisecond,
		JitterMax:  500 * time.Millisecond,
	}

	for attempt := 0; attempt <= 12; attempt++ {
		base := b.Base(attempt)
		for i := 0; i < 50; i++ {
			got := b.Next(attempt)
			if got < base || got >= base+b.JitterMax {
				t.Fatalf("Next(%d) = %v, want in [%v, %v)", attempt, got, base, base+b.JitterMax)
			}
		}
	}
}

func TestBackoffZeroJitter(t *testing.T) {
	b := Backoff{
		Initial:    1 * time.Second,
		Multiplier: 2,
		Max:        60 * time.Second,
	}

	if got := b.Next(3); got != 8*time.Second {
		t.Errorf("Next(3) with no jitter = %v, want 8s", got)
	}
}

func TestBackoffLargeAttemptNoOverflow(t *testing.T) {
	b := DefaultBackoff()

	// Attempt counts far beyond the exponent cap must still clamp cleanly.
	for _, attempt := range []int{20, 21, 64, 1 << 20} {
		if got := b.Base(attempt); got != b.Max {
			t.Errorf("Base(%d) = %v, want %v", attempt, got, b.Max)
		}
	}
}
