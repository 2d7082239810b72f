package taskq

import (
	"math/rand"
	"time"
)

const (
	// backoffFloor is the minimum wait between retries.
	backoffFloor = 60 * time.Second

	// backoffUnit is the per-step unit doubled for each retry index.
	backoffUnit = 120 * time.Second

	// debugRetryDelay keeps local iteration fast while debugging.
	debugRetryDelay = 5 * time.Second
)

// BackoffPolicy computes retry-delay schedules.
type BackoffPolicy struct {
	MaxRetryDelay time.Duration // ceiling for a single delay
	Debug         bool

	// Rand is the jitter source. Nil uses the shared global source;
	// tests inject a seeded one.
	Rand *rand.Rand
}

// Schedule returns the delays to wait before each successive retry,
// using exponential back-off with jitter to even out the spikes, waiting
// at least one minute between retries. maxRetries of zero returns nil,
// which disables automatic retry entirely.
func (p BackoffPolicy) Schedule(maxRetries int) []time.Duration {
	if maxRetries <= 0 {
		return nil
	}

	if p.Debug {
		// While debugging locally, enable faster retries.
		schedule := make([]time.Duration, maxRetries)
		for n := range schedule {
			schedule[n] = debugRetryDelay
		}
		return schedule
	}

	ceiling := p.MaxRetryDelay
	if ceiling <= 0 {
		ceiling = 34 * time.Hour
	}

	schedule := make([]time.Duration, maxRetries)
	for n := range schedule {
		bound := backoffUnit << n
		if bound > ceiling || bound <= 0 { // <<= overflow guard
			bound = ceiling
		}
		// Jitter is sampled independently for each retry index.
		jittered := time.Duration(p.intn(int64(bound / time.Second)))
		delay := jittered * time.Second
		if delay < backoffFloor {
			delay = backoffFloor
		}
		schedule[n] = delay
	}
	return schedule
}

// ScheduleSeconds returns the schedule as whole seconds, the form carried
// on the wire by task envelopes.
func (p BackoffPolicy) ScheduleSeconds(maxRetries int) []int64 {
	schedule := p.Schedule(maxRetries)
	if schedule == nil {
		return nil
	}
	seconds := make([]int64, len(schedule))
	for i, d := range schedule {
		seconds[i] = int64(d / time.Second)
	}
	return seconds
}

func (p BackoffPolicy) intn(n int64) int64 {
	if n <= 0 {
		return 0
	}
	if p.Rand != nil {
		return p.Rand.Int63n(n)
	}
	return rand.Int63n(n)
}
