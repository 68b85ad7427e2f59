package connection

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Run("DefaultSequence", func(t *testing.T) {
		b := NewBackoff()

		// Base values, without jitter: 1s, 2s, 4s, 8s, 16s, 30s, 30s...
		expected := []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
			30 * time.Second,
			30 * time.Second,
		}

		for i, exp := range expected {
			base := b.Current()
			_ = b.Next()

			if base != exp {
				t.Errorf("Attempt %d: base = %v, want %v", i, base, exp)
			}
		}
	})

	t.Run("JitterBounds", func(t *testing.T) {
		b := NewBackoff()

		for i := 0; i < 20; i++ {
			b.Reset()
			d := b.Next()
			if d < InitialBackoff || d > time.Duration(float64(InitialBackoff)*(1+JitterFactor)) {
				t.Errorf("Sample %d: %v out of expected range [1s, 1.25s]", i, d)
			}
		}
	})

	t.Run("DeterministicJitter", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: time.Second, Jitter: 0.5})
		b.random = func() float64 { return 0.5 }

		if d := b.Next(); d != 1250*time.Millisecond {
			t.Errorf("Next() = %v, want 1.25s", d)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff()
		for i := 0; i < 5; i++ {
			b.Next()
		}

		if b.Current() <= InitialBackoff {
			t.Error("Backoff should have increased")
		}

		b.Reset()

		if b.Current() != InitialBackoff {
			t.Errorf("Current() = %v after reset, want %v", b.Current(), InitialBackoff)
		}
		if b.Attempts() != 0 {
			t.Errorf("Attempts() = %d after reset, want 0", b.Attempts())
		}
		if !b.Due().IsZero() {
			t.Errorf("Due() = %v after reset, want zero", b.Due())
		}
	})

	t.Run("CustomConfig", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial:    100 * time.Millisecond,
			Max:        500 * time.Millisecond,
			Multiplier: 2.0,
			Jitter:     0,
		})

		expected := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			500 * time.Millisecond,
			500 * time.Millisecond,
		}
		for i, exp := range expected {
			if got := b.Next(); got != exp {
				t.Errorf("Attempt %d: Next() = %v, want %v", i, got, exp)
			}
		}
	})

	t.Run("MaxBelowInitial", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: 2 * time.Second, Max: time.Second})
		if b.Current() != 2*time.Second {
			t.Errorf("Current() = %v, want 2s", b.Current())
		}
	})
}

func TestBackoffSchedule(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{Initial: time.Second, Jitter: 0})
	now := time.Unix(100, 0)

	if !b.Ready(now) {
		t.Fatal("a fresh backoff must be ready immediately")
	}

	due := b.Schedule(now)
	if want := now.Add(time.Second); !due.Equal(want) {
		t.Errorf("Schedule() = %v, want %v", due, want)
	}
	if b.Ready(now.Add(999 * time.Millisecond)) {
		t.Error("Ready() before due time")
	}
	if !b.Ready(now.Add(time.Second)) {
		t.Error("not Ready() at due time")
	}

	due = b.Schedule(now.Add(time.Second))
	if want := now.Add(3 * time.Second); !due.Equal(want) {
		t.Errorf("second Schedule() = %v, want %v", due, want)
	}
	if b.Attempts() != 2 {
		t.Errorf("Attempts() = %d, want 2", b.Attempts())
	}
}
