package taskq

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/tmnhat/basketq/internal/core/config"
	"github.com/tmnhat/basketq/internal/core/domain"
	"github.com/tmnhat/basketq/internal/infra/storage"
	"github.com/tmnhat/basketq/internal/observe"
	"github.com/tmnhat/basketq/internal/taskq/metrics"
)

// Backend is the durable queue the engine runs on. *Queue is the redis
// implementation; tests substitute an in-memory one.
//
// Delivery is at-least-once: a popped envelope stays claimed until Ack,
// and RequeueOrphans returns unacknowledged claims from a dead consumer
// to the ready queue.
type Backend interface {
	Name() string
	Enqueue(ctx context.Context, env *domain.TaskEnvelope, atFront bool) error
	ScheduleRetry(ctx context.Context, env *domain.TaskEnvelope, delay time.Duration) error
	Pop(ctx context.Context) (*domain.TaskEnvelope, bool, error)
	PopBlocking(ctx context.Context, timeout time.Duration) (*domain.TaskEnvelope, bool, error)
	Ack(ctx context.Context, env *domain.TaskEnvelope) error
	RequeueOrphans(ctx context.Context) (int, error)
	DrainDue(ctx context.Context, now time.Time) (int, error)
	SetStatus(ctx context.Context, env *domain.TaskEnvelope, extra map[string]any) error
}

// Func is a task body. Args and kwargs arrive exactly as they were
// passed to Delay, decoded from JSON.
type Func func(ctx context.Context, args []any, kwargs map[string]any) error

// Options configures an Engine.
type Options struct {
	Backend     Backend
	Flags       config.Flags
	FailedTasks storage.FailedTaskRepository
	QueuedTasks storage.QueuedTaskRepository
	Sink        observe.Sink

	StoreTaskFailures bool
	MaxRetries        int
	MaxRetryDelay     time.Duration
	DefaultTimeout    time.Duration
	ResultTTL         time.Duration
	Debug             bool

	// Eager runs Delay calls inline instead of enqueueing, the way the
	// sync test configuration does. No retries are attempted.
	Eager bool

	// Rand seeds backoff jitter; nil uses the global source.
	Rand *rand.Rand
}

// Engine is the composition root: it owns the task registry, the retry
// policy, the maintenance gate and the exception-handler chain.
type Engine struct {
	opts     Options
	handlers []ExceptionHandler

	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewEngine builds an engine from options, wiring the default
// failure-recording exception handler.
func NewEngine(opts Options) *Engine {
	if opts.Flags == nil {
		opts.Flags = config.StaticFlags{}
	}
	if opts.Sink == nil {
		opts.Sink = observe.NewLogSink()
	}
	if opts.DefaultTimeout == 0 {
		opts.DefaultTimeout = 10 * time.Minute
	}
	e := &Engine{
		opts:  opts,
		tasks: make(map[string]*Task),
	}
	e.handlers = []ExceptionHandler{
		NewTaskFailureHandler(opts.FailedTasks, opts.Sink, opts.StoreTaskFailures),
	}
	return e
}

// Register wires fn as a schedulable task. Registering the same name
// twice is a programming error.
func (e *Engine) Register(name string, fn Func) *Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.tasks[name]; exists {
		panic(fmt.Sprintf("taskq: task %q registered twice", name))
	}
	t := &Task{name: name, fn: fn, engine: e}
	e.tasks[name] = t
	return t
}

// Task looks up a registered task by name.
func (e *Engine) Task(name string) (*Task, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tasks[name]
	return t, ok
}

// Names returns all registered task names.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.tasks))
	for name := range e.tasks {
		names = append(names, name)
	}
	return names
}

// Backend returns the queue backend the engine runs on.
func (e *Engine) Backend() Backend { return e.opts.Backend }

// RetryFailed re-enqueues a fresh envelope derived from a stored failure
// record. The record itself is retained.
func (e *Engine) RetryFailed(ctx context.Context, rec *domain.FailedTask) error {
	t, ok := e.Task(rec.Name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, rec.Name)
	}
	_, err := t.DelayOpts(ctx, CallOptions{Args: rec.Args, Kwargs: rec.Kwargs})
	return err
}

// onSuccess fires terminal success metrics. Metrics are suppressed in
// maintenance mode, and the global counter excludes heartbeat tasks.
func (e *Engine) onSuccess(env *domain.TaskEnvelope) {
	if e.opts.Flags.MaintenanceMode() {
		return
	}
	e.logTiming(env)
	metrics.TaskSuccess.WithLabelValues(env.Name).Inc()
	if !env.IsSnitch() {
		metrics.SuccessTotal.Inc()
	}
}

// onFailure fires terminal failure metrics. Heartbeat tasks are exempt
// from failure bookkeeping entirely.
func (e *Engine) onFailure(env *domain.TaskEnvelope) {
	if e.opts.Flags.MaintenanceMode() {
		return
	}
	if env.IsSnitch() {
		return
	}
	e.logTiming(env)
	metrics.TaskFailure.WithLabelValues(env.Name).Inc()
	metrics.FailureTotal.Inc()
}

// logTiming emits total latency (queue wait plus execution) measured
// from the enqueue-time start_time. Called only on terminal transitions
// so retries never double-count the original queue wait.
func (e *Engine) logTiming(env *domain.TaskEnvelope) {
	if env.Meta.StartTime <= 0 {
		return
	}
	total := nowSeconds() - env.Meta.StartTime
	if total < 0 {
		return
	}
	metrics.TaskDuration.WithLabelValues(env.Name).Observe(total)
	metrics.DurationTotal.Observe(total)
}

// newEnvelope builds an envelope for a task call, attaching the retry
// schedule, timeout and metadata.
func (e *Engine) newEnvelope(t *Task, opts CallOptions) *domain.TaskEnvelope {
	env := domain.NewTaskEnvelope(t.name, opts.Args, opts.Kwargs)
	if opts.JobID != "" {
		env.ID = opts.JobID
	}
	env.DependsOn = opts.DependsOn
	env.Timeout = int64(e.opts.DefaultTimeout / time.Second)
	env.ResultTTL = int64(e.opts.ResultTTL / time.Second)

	policy := BackoffPolicy{
		MaxRetryDelay: e.opts.MaxRetryDelay,
		Debug:         e.opts.Debug,
		Rand:          e.opts.Rand,
	}
	env.RetrySchedule = policy.ScheduleSeconds(e.opts.MaxRetries)
	env.RetriesLeft = len(env.RetrySchedule)
	return env
}

// runInline executes an envelope synchronously, for eager mode. Failures
// run through the exception-handler chain with no retries.
func (e *Engine) runInline(ctx context.Context, t *Task, env *domain.TaskEnvelope) {
	env.RetriesLeft = 0
	env.RetrySchedule = nil
	env.Status = domain.StatusStarted

	err := t.perform(ctx, env)
	if err == nil {
		env.Status = domain.StatusFinished
		e.onSuccess(env)
		return
	}

	outcome := Classify(err, env.RetriesLeft)
	env.Status = domain.StatusFailed
	for _, h := range e.handlers {
		if !h.Handle(ctx, env, err, outcome, debug.Stack()) {
			break
		}
	}
	if outcome == OutcomeFail {
		e.onFailure(env)
	}
}

// Task wraps a plain function into a schedulable unit with a direct call
// path and an asynchronous enqueue path.
type Task struct {
	name   string
	fn     Func
	engine *Engine
}

func (t *Task) Name() string { return t.name }

// CallOptions carries the arguments and scheduling hints for one call.
type CallOptions struct {
	Args      []any
	Kwargs    map[string]any
	JobID     string
	AtFront   bool
	DependsOn string
}

// Call invokes the task synchronously. The maintenance gate still
// applies; errors propagate to the caller unchanged.
func (t *Task) Call(ctx context.Context, args ...any) error {
	return t.CallKw(ctx, args, nil)
}

// CallKw is Call with keyword arguments.
func (t *Task) CallKw(ctx context.Context, args []any, kwargs map[string]any) error {
	env := domain.NewTaskEnvelope(t.name, args, kwargs)
	env.Meta.StartTime = 0 // direct calls have no queue wait to measure
	return t.perform(ctx, env)
}

// Delay enqueues the task for asynchronous execution.
func (t *Task) Delay(ctx context.Context, args ...any) (*domain.TaskEnvelope, error) {
	return t.DelayOpts(ctx, CallOptions{Args: args})
}

// DelayOpts is Delay with keyword arguments and scheduling hints. In
// maintenance mode the call is persisted for later replay (or dropped
// when the system is also read-only) and a nil envelope is returned.
func (t *Task) DelayOpts(ctx context.Context, opts CallOptions) (*domain.TaskEnvelope, error) {
	deferred, err := t.gate(ctx, opts.Args, opts.Kwargs)
	if err != nil {
		return nil, err
	}
	if deferred {
		return nil, nil
	}

	env := t.engine.newEnvelope(t, opts)

	if t.engine.opts.Eager {
		t.engine.runInline(ctx, t, env)
		return env, nil
	}

	if err := t.engine.opts.Backend.Enqueue(ctx, env, opts.AtFront); err != nil {
		return nil, err
	}
	return env, nil
}

// gate is the maintenance gate, re-checked on every invocation since the
// flags can toggle while workers are warm.
func (t *Task) gate(ctx context.Context, args []any, kwargs map[string]any) (bool, error) {
	flags := t.engine.opts.Flags
	if !flags.MaintenanceMode() {
		return false, nil
	}

	if flags.ReadOnlyMode() {
		metrics.TaskNotQueued.WithLabelValues(t.name).Inc()
		return true, nil
	}

	if t.engine.opts.QueuedTasks == nil {
		return false, fmt.Errorf("cannot defer task %s: no queued task store configured", t.name)
	}

	// record task for later
	qt := &domain.QueuedTask{
		When:   time.Now(),
		Name:   t.name,
		Args:   args,
		Kwargs: kwargs,
	}
	if err := t.engine.opts.QueuedTasks.Add(ctx, qt); err != nil {
		return false, fmt.Errorf("failed to defer task %s: %w", t.name, err)
	}
	metrics.TaskQueued.WithLabelValues(t.name).Inc()
	return true, nil
}

// perform runs the task body for one attempt: invocation counters,
// first-attempt latency, the maintenance gate, then the function itself.
func (t *Task) perform(ctx context.Context, env *domain.TaskEnvelope) error {
	metrics.TaskRuns.WithLabelValues(t.name).Inc()
	metrics.TasksTotal.Inc()

	// A caller-supplied start_time measures end-to-end latency; emit it
	// only on the first attempt so retries don't double-count it.
	if st, ok := kwargStartTime(env.Kwargs); ok && env.AttemptIndex() <= 0 {
		if elapsed := nowSeconds() - st; elapsed >= 0 {
			metrics.TaskQueueLatency.WithLabelValues(t.name).Observe(elapsed)
		}
	}

	deferred, err := t.gate(ctx, env.Args, env.Kwargs)
	if err != nil {
		return err
	}
	if deferred {
		return nil
	}

	return t.fn(ctx, env.Args, env.Kwargs)
}

func kwargStartTime(kwargs map[string]any) (float64, bool) {
	if kwargs == nil {
		return 0, false
	}
	switch v := kwargs["start_time"].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
