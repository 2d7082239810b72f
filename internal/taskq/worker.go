package taskq

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/tmnhat/basketq/internal/core/domain"
)

// WorkerOptions configures the dequeue-execute loop.
type WorkerOptions struct {
	// Burst drains the ready queue and exits instead of blocking for
	// more work.
	Burst bool

	// WithScheduler runs the background drain that moves due retries
	// back into the ready queue. Without it some other process must run
	// the drain.
	WithScheduler bool

	// MaxJobs stops the worker after this many jobs. Zero means no
	// limit.
	MaxJobs int

	PollInterval      time.Duration
	SchedulerInterval time.Duration
}

// Worker is a single-threaded dequeue-execute loop. Horizontal scale-out
// is achieved by running more worker processes against the same queue,
// not by concurrency inside one.
type Worker struct {
	engine  *Engine
	backend Backend
	opts    WorkerOptions
}

// NewWorker builds a worker over the engine's backend.
func NewWorker(engine *Engine, opts WorkerOptions) *Worker {
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.SchedulerInterval == 0 {
		opts.SchedulerInterval = time.Second
	}
	return &Worker{
		engine:  engine,
		backend: engine.Backend(),
		opts:    opts,
	}
}

// Work runs the loop until the context is cancelled, the job limit is
// reached, or (in burst mode) the queue is empty. A backend error is
// returned to the caller so the process can exit non-zero instead of
// busy-looping.
func (w *Worker) Work(ctx context.Context) error {
	slog.Info("Worker started",
		"queue", w.backend.Name(),
		"burst", w.opts.Burst,
		"with_scheduler", w.opts.WithScheduler,
	)

	// Reclaim anything a previous run left in flight before taking new work.
	if moved, err := w.backend.RequeueOrphans(ctx); err != nil {
		slog.Error("Failed to requeue orphaned jobs", "error", err)
	} else if moved > 0 {
		slog.Warn("Requeued orphaned jobs from a previous run", "count", moved)
	}

	if w.opts.WithScheduler {
		go w.runScheduler(ctx)
	}

	jobs := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var (
			env *domain.TaskEnvelope
			ok  bool
			err error
		)
		if w.opts.Burst {
			env, ok, err = w.backend.Pop(ctx)
			if err != nil {
				return fmt.Errorf("queue backend unavailable: %w", err)
			}
			if !ok {
				// Burst mode quits once the queue is empty.
				slog.Info("Worker finished burst", "jobs", jobs)
				return nil
			}
		} else {
			env, ok, err = w.backend.PopBlocking(ctx, w.opts.PollInterval)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("queue backend unavailable: %w", err)
			}
			if !ok {
				continue
			}
		}

		w.Perform(ctx, env)

		jobs++
		if w.opts.MaxJobs > 0 && jobs >= w.opts.MaxJobs {
			slog.Info("Worker reached job limit", "jobs", jobs)
			return nil
		}
	}
}

// runScheduler periodically drains due retries into the ready queue.
func (w *Worker) runScheduler(ctx context.Context) {
	ticker := time.NewTicker(w.opts.SchedulerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			moved, err := w.backend.DrainDue(ctx, time.Now())
			if err != nil {
				slog.Error("Scheduler drain failed", "error", err)
				continue
			}
			if moved > 0 {
				slog.Debug("Released scheduled jobs", "count", moved)
			}
		}
	}
}

// Perform executes one envelope: one attempt of the underlying task,
// then either the success path or the failure-classification path.
func (w *Worker) Perform(ctx context.Context, env *domain.TaskEnvelope) {
	// A dependency that hasn't finished yet sends the envelope back to
	// the tail without consuming a retry.
	if env.DependsOn != "" && !w.dependencyDone(ctx, env.DependsOn) {
		if err := w.backend.Enqueue(ctx, env, false); err != nil {
			// Leave the claim unacknowledged; orphan recovery will
			// redeliver it.
			slog.Error("Failed to requeue dependent job", "job", env.ID, "error", err)
			return
		}
		w.ack(ctx, env)
		return
	}

	env.Status = domain.StatusStarted
	if err := w.backend.SetStatus(ctx, env, map[string]any{"started_at": time.Now().Unix()}); err != nil {
		slog.Error("Failed to mark job started", "job", env.ID, "error", err)
	}

	task, ok := w.engine.Task(env.Name)
	if !ok {
		w.handleFailure(ctx, env, fmt.Errorf("%w: %s", ErrUnknownTask, env.Name), debug.Stack())
		return
	}

	stack, err := w.runAttempt(ctx, task, env)
	if err == nil {
		env.Status = domain.StatusFinished
		if serr := w.backend.SetStatus(ctx, env, map[string]any{"finished_at": time.Now().Unix()}); serr != nil {
			slog.Error("Failed to mark job finished", "job", env.ID, "error", serr)
		}
		w.engine.onSuccess(env)
		w.ack(ctx, env)
		return
	}

	w.handleFailure(ctx, env, err, stack)
}

// ack releases the backend's claim on a committed envelope.
func (w *Worker) ack(ctx context.Context, env *domain.TaskEnvelope) {
	if err := w.backend.Ack(ctx, env); err != nil {
		slog.Error("Failed to ack job", "job", env.ID, "error", err)
	}
}

// runAttempt invokes the task body under the per-attempt timeout,
// converting panics into errors. There is no cooperative cancellation
// beyond the context carried into the body.
func (w *Worker) runAttempt(ctx context.Context, task *Task, env *domain.TaskEnvelope) (stack []byte, err error) {
	timeout := w.engine.opts.DefaultTimeout
	if env.Timeout > 0 {
		timeout = time.Duration(env.Timeout) * time.Second
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		err   error
		stack []byte
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{
					err:   fmt.Errorf("task panic: %v", r),
					stack: debug.Stack(),
				}
			}
		}()
		done <- result{err: task.perform(attemptCtx, env)}
	}()

	select {
	case res := <-done:
		if res.err != nil && res.stack == nil {
			res.stack = debug.Stack()
		}
		return res.stack, res.err
	case <-attemptCtx.Done():
		// The attempt is abandoned; the goroutine may still be draining.
		return debug.Stack(), fmt.Errorf("task %s timed out after %s: %w", env.Name, timeout, attemptCtx.Err())
	}
}

// handleFailure classifies the error, runs the exception-handler chain
// on the uncommitted envelope, then commits the transition. The handlers
// run strictly before the commit so their view of the envelope steers
// the retry-vs-fail decision.
func (w *Worker) handleFailure(ctx context.Context, env *domain.TaskEnvelope, taskErr error, stack []byte) {
	outcome := Classify(taskErr, env.RetriesLeft)

	// The uncommitted status the handlers observe.
	if outcome == OutcomeRetry {
		env.Status = domain.StatusScheduled
	} else {
		env.Status = domain.StatusFailed
	}

	for _, h := range w.engine.handlers {
		if !h.Handle(ctx, env, taskErr, outcome, stack) {
			break
		}
	}

	// A handler may have forced the retries to zero; honor that over the
	// original classification.
	if outcome == OutcomeRetry && env.RetriesLeft <= 0 {
		outcome = OutcomeFail
	}

	switch outcome {
	case OutcomeRetry:
		delay := env.NextDelay()
		env.RetriesLeft--
		if err := w.backend.ScheduleRetry(ctx, env, delay); err != nil {
			// The claim stays unacknowledged so the envelope survives in
			// the backend and orphan recovery redelivers it.
			slog.Error("Failed to schedule retry, leaving job claimed", "job", env.ID, "error", err)
			env.RetriesLeft++
			return
		}
		w.ack(ctx, env)
		slog.Warn("Task failed, retry scheduled",
			"task", env.Name, "job", env.ID, "delay", delay,
			"retries_left", env.RetriesLeft, "error", taskErr,
		)

	case OutcomeIgnore:
		// Dropped silently: no failure record, no failure metrics.
		env.RetriesLeft = 0
		env.Status = domain.StatusFailed
		if err := w.backend.SetStatus(ctx, env, map[string]any{"ignored": true}); err != nil {
			slog.Error("Failed to mark job ignored", "job", env.ID, "error", err)
		}
		w.ack(ctx, env)
		slog.Info("Task error ignored", "task", env.Name, "job", env.ID, "error", taskErr)

	case OutcomeFail:
		env.RetriesLeft = 0
		env.Status = domain.StatusFailed
		if err := w.backend.SetStatus(ctx, env, map[string]any{"failed_at": time.Now().Unix()}); err != nil {
			slog.Error("Failed to mark job failed", "job", env.ID, "error", err)
		}
		w.engine.onFailure(env)
		w.ack(ctx, env)
		slog.Error("Task failed terminally", "task", env.Name, "job", env.ID, "error", taskErr)
	}
}

// dependencyDone reports whether the named job has finished. Only the
// redis backend tracks job status; other backends always report done.
func (w *Worker) dependencyDone(ctx context.Context, jobID string) bool {
	q, ok := w.backend.(*Queue)
	if !ok {
		return true
	}
	status, err := q.JobStatus(ctx, jobID)
	if err != nil || len(status) == 0 {
		// Unknown job: assume it's gone and don't hold this one hostage.
		return true
	}
	return status["status"] == string(domain.StatusFinished)
}
