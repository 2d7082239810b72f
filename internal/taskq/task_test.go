package taskq

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tmnhat/basketq/internal/core/config"
	"github.com/tmnhat/basketq/internal/core/domain"
	"github.com/tmnhat/basketq/internal/taskq/metrics"
)

// toggleFlags lets a test flip maintenance mode between calls.
type toggleFlags struct {
	maintenance bool
	readOnly    bool
}

func (f *toggleFlags) MaintenanceMode() bool { return f.maintenance }
func (f *toggleFlags) ReadOnlyMode() bool    { return f.readOnly }

func TestDelayDefersInMaintenanceMode(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Flags = config.StaticFlags{Maintenance: true}
	})
	task := f.engine.Register("crm.defer_me", func(ctx context.Context, args []any, kwargs map[string]any) error {
		t.Error("task body ran during maintenance")
		return nil
	})

	ctx := context.Background()
	env, err := task.DelayOpts(ctx, CallOptions{
		Args:   []any{"token-9"},
		Kwargs: map[string]any{"fields": "all"},
	})
	if err != nil {
		t.Fatalf("DelayOpts: %v", err)
	}
	if env != nil {
		t.Error("deferred call returned an envelope")
	}
	if f.backend.depth() != 0 {
		t.Error("deferred call reached the queue backend")
	}

	batch, err := f.queued.GetBatch(ctx, 10)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("deferred records = %d, want 1", len(batch))
	}
	rec := batch[0]
	if rec.Name != "crm.defer_me" {
		t.Errorf("record name = %s", rec.Name)
	}
	if len(rec.Args) != 1 || rec.Args[0] != "token-9" {
		t.Errorf("record args = %v", rec.Args)
	}
	if rec.Kwargs["fields"] != "all" {
		t.Errorf("record kwargs = %v", rec.Kwargs)
	}
}

func TestDelayDroppedInReadOnlyMaintenance(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Flags = config.StaticFlags{Maintenance: true, ReadOnly: true}
	})
	name := "crm.drop_me"
	task := f.engine.Register(name, func(ctx context.Context, args []any, kwargs map[string]any) error {
		t.Error("task body ran during read-only maintenance")
		return nil
	})

	ctx := context.Background()
	env, err := task.Delay(ctx, "token-10")
	if err != nil {
		t.Fatalf("Delay: %v", err)
	}
	if env != nil {
		t.Error("dropped call returned an envelope")
	}
	if f.backend.depth() != 0 {
		t.Error("dropped call reached the queue backend")
	}
	if n, _ := f.queued.Count(ctx); n != 0 {
		t.Errorf("deferred records = %d, want 0 in read-only mode", n)
	}
	if got := testutil.ToFloat64(metrics.TaskNotQueued.WithLabelValues(name)); got != 1 {
		t.Errorf("not-queued counter = %v, want 1", got)
	}
}

func TestGateRecheckedPerInvocation(t *testing.T) {
	flags := &toggleFlags{maintenance: true}
	f := newFixture(t, func(o *Options) { o.Flags = flags })
	task := f.engine.Register("crm.toggling", func(ctx context.Context, args []any, kwargs map[string]any) error {
		return nil
	})

	ctx := context.Background()
	if env, _ := task.Delay(ctx); env != nil {
		t.Fatal("call during maintenance was not deferred")
	}

	flags.maintenance = false
	env, err := task.Delay(ctx)
	if err != nil {
		t.Fatalf("Delay: %v", err)
	}
	if env == nil {
		t.Fatal("call after maintenance ended was still deferred")
	}
	if f.backend.depth() != 1 {
		t.Error("call after maintenance ended did not reach the backend")
	}
}

func TestCallAppliesGate(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Flags = config.StaticFlags{Maintenance: true}
	})
	ran := false
	task := f.engine.Register("crm.direct_call", func(ctx context.Context, args []any, kwargs map[string]any) error {
		ran = true
		return nil
	})

	ctx := context.Background()
	if err := task.Call(ctx, "x"); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if ran {
		t.Error("direct call ran during maintenance")
	}
	if n, _ := f.queued.Count(ctx); n != 1 {
		t.Errorf("deferred records = %d, want 1", n)
	}
}

func TestEagerDelayRunsInline(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Eager = true })
	calls := 0
	task := f.engine.Register("crm.eager_ok", func(ctx context.Context, args []any, kwargs map[string]any) error {
		calls++
		return nil
	})

	env, err := task.Delay(context.Background(), "a")
	if err != nil {
		t.Fatalf("Delay: %v", err)
	}
	if calls != 1 {
		t.Errorf("task ran %d times, want inline once", calls)
	}
	if f.backend.depth() != 0 {
		t.Error("eager call reached the queue backend")
	}
	if env.Status != domain.StatusFinished {
		t.Errorf("status = %s, want finished", env.Status)
	}
}

func TestEagerFailureRecorded(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Eager = true })
	task := f.engine.Register("crm.eager_boom", func(ctx context.Context, args []any, kwargs map[string]any) error {
		return errors.New("boom")
	})

	env, err := task.Delay(context.Background())
	if err != nil {
		t.Fatalf("Delay: %v", err)
	}
	if env.Status != domain.StatusFailed {
		t.Errorf("status = %s, want failed", env.Status)
	}
	if n := failedCount(t, f); n != 1 {
		t.Errorf("failure records = %d, want 1", n)
	}
	if got := f.sink.count("failed"); got != 1 {
		t.Errorf("failed reports = %d, want 1", got)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	f := newFixture(t, nil)
	fn := func(ctx context.Context, args []any, kwargs map[string]any) error { return nil }
	f.engine.Register("crm.dup", fn)

	defer func() {
		if recover() == nil {
			t.Error("second Register with the same name did not panic")
		}
	}()
	f.engine.Register("crm.dup", fn)
}

func TestRetryFailedRequeues(t *testing.T) {
	f := newFixture(t, nil)
	name := "crm.replay_me"
	f.engine.Register(name, func(ctx context.Context, args []any, kwargs map[string]any) error {
		return nil
	})

	rec := &domain.FailedTask{
		Name:   name,
		Args:   []any{"token-11"},
		Kwargs: map[string]any{"fields": "email"},
	}
	if err := f.engine.RetryFailed(context.Background(), rec); err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if f.backend.depth() != 1 {
		t.Fatal("retried record did not reach the backend")
	}

	env, _, _ := f.backend.Pop(context.Background())
	if env.Name != name || len(env.Args) != 1 || env.Args[0] != "token-11" {
		t.Errorf("requeued envelope = %s %v", env.Name, env.Args)
	}
}

func TestRetryFailedUnknownTask(t *testing.T) {
	f := newFixture(t, nil)
	err := f.engine.RetryFailed(context.Background(), &domain.FailedTask{Name: "gone.task"})
	if !errors.Is(err, ErrUnknownTask) {
		t.Errorf("err = %v, want ErrUnknownTask", err)
	}
}

func TestEnvelopeCarriesRetrySchedule(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxRetries = 4 })
	task := f.engine.Register("crm.scheduled", func(ctx context.Context, args []any, kwargs map[string]any) error {
		return nil
	})

	env, err := task.Delay(context.Background())
	if err != nil {
		t.Fatalf("Delay: %v", err)
	}
	if env.RetriesLeft != 4 || len(env.RetrySchedule) != 4 {
		t.Fatalf("retries_left = %d, schedule = %v, want 4 of each", env.RetriesLeft, env.RetrySchedule)
	}
	for i, s := range env.RetrySchedule {
		if s < 60 {
			t.Errorf("schedule[%d] = %ds, below the 60s floor", i, s)
		}
	}
}

func TestEnvelopeDebugSchedule(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.MaxRetries = 3
		o.Debug = true
	})
	task := f.engine.Register("crm.debug_scheduled", func(ctx context.Context, args []any, kwargs map[string]any) error {
		return nil
	})

	env, _ := task.Delay(context.Background())
	for i, s := range env.RetrySchedule {
		if s != 5 {
			t.Errorf("schedule[%d] = %ds, want fixed 5s in debug mode", i, s)
		}
	}
}

func TestEnvelopeNoScheduleWithoutRetries(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxRetries = 0 })
	task := f.engine.Register("crm.no_retries", func(ctx context.Context, args []any, kwargs map[string]any) error {
		return nil
	})

	env, _ := task.Delay(context.Background())
	if env.RetriesLeft != 0 || len(env.RetrySchedule) != 0 {
		t.Errorf("retries_left = %d, schedule = %v, want none", env.RetriesLeft, env.RetrySchedule)
	}
}
