package taskq

import (
	"math/rand"
	"testing"
	"time"
)

func TestBackoffScheduleBounds(t *testing.T) {
	policy := BackoffPolicy{
		MaxRetryDelay: 34 * time.Hour,
		Rand:          rand.New(rand.NewSource(1)),
	}

	schedule := policy.Schedule(12)
	if len(schedule) != 12 {
		t.Fatalf("expected 12 delays, got %d", len(schedule))
	}

	for n, delay := range schedule {
		if delay < 60*time.Second {
			t.Errorf("delay(%d) = %s, below the 60s floor", n, delay)
		}
		if delay > 34*time.Hour {
			t.Errorf("delay(%d) = %s, above the ceiling", n, delay)
		}
	}
}

func TestBackoffScheduleCeiling(t *testing.T) {
	policy := BackoffPolicy{
		MaxRetryDelay: 5 * time.Minute,
		Rand:          rand.New(rand.NewSource(7)),
	}

	for n, delay := range policy.Schedule(10) {
		if delay > 5*time.Minute {
			t.Errorf("delay(%d) = %s, above the configured ceiling", n, delay)
		}
		if delay < 60*time.Second {
			t.Errorf("delay(%d) = %s, below the 60s floor", n, delay)
		}
	}
}

func TestBackoffScheduleDebug(t *testing.T) {
	policy := BackoffPolicy{Debug: true}

	for n, delay := range policy.Schedule(10) {
		if delay != debugRetryDelay {
			t.Errorf("delay(%d) = %s, want fixed debug delay %s", n, delay, debugRetryDelay)
		}
	}
}

func TestBackoffScheduleZeroRetries(t *testing.T) {
	policy := BackoffPolicy{MaxRetryDelay: time.Hour}
	if schedule := policy.Schedule(0); schedule != nil {
		t.Errorf("Schedule(0) = %v, want nil", schedule)
	}
	if schedule := policy.Schedule(-1); schedule != nil {
		t.Errorf("Schedule(-1) = %v, want nil", schedule)
	}
}

func TestBackoffScheduleDeterministicWithSeed(t *testing.T) {
	a := BackoffPolicy{MaxRetryDelay: time.Hour, Rand: rand.New(rand.NewSource(42))}.Schedule(8)
	b := BackoffPolicy{MaxRetryDelay: time.Hour, Rand: rand.New(rand.NewSource(42))}.Schedule(8)

	for n := range a {
		if a[n] != b[n] {
			t.Fatalf("schedules diverge at %d: %s vs %s", n, a[n], b[n])
		}
	}
}

func TestBackoffScheduleJitterIndependentPerIndex(t *testing.T) {
	// With a wide ceiling the odds of every index collapsing to the same
	// value are negligible unless one draw is being reused.
	schedule := BackoffPolicy{
		MaxRetryDelay: 34 * time.Hour,
		Rand:          rand.New(rand.NewSource(3)),
	}.Schedule(12)

	allEqual := true
	for _, delay := range schedule[1:] {
		if delay != schedule[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		t.Error("every delay is identical; jitter appears to reuse one draw")
	}
}

func TestScheduleSeconds(t *testing.T) {
	seconds := BackoffPolicy{
		MaxRetryDelay: time.Hour,
		Rand:          rand.New(rand.NewSource(9)),
	}.ScheduleSeconds(4)

	if len(seconds) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(seconds))
	}
	for n, s := range seconds {
		if s < 60 || s > 3600 {
			t.Errorf("seconds(%d) = %d, outside [60, 3600]", n, s)
		}
	}
}
