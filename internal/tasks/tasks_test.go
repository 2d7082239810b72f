package tasks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/tmnhat/basketq/internal/core/config"
	"github.com/tmnhat/basketq/internal/core/domain"
	"github.com/tmnhat/basketq/internal/observe"
	"github.com/tmnhat/basketq/internal/taskq"
)

func newEagerEngine(cfg *config.AppConfig) *taskq.Engine {
	engine := taskq.NewEngine(taskq.Options{Eager: true, Sink: observe.NopSink{}})
	RegisterAll(engine, cfg)
	return engine
}

func TestSnitchPostsElapsed(t *testing.T) {
	var gotM string
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		r.ParseForm()
		gotM = r.PostFormValue("m")
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Snitch.URL = srv.URL
	engine := newEagerEngine(cfg)

	env, err := Snitch(context.Background(), engine)
	if err != nil {
		t.Fatalf("Snitch: %v", err)
	}
	if env == nil || env.Status != domain.StatusFinished {
		t.Fatalf("envelope = %+v, want finished", env)
	}
	if hits != 1 {
		t.Errorf("endpoint hit %d times, want 1", hits)
	}

	ms, err := strconv.ParseInt(gotM, 10, 64)
	if err != nil {
		t.Fatalf("m = %q, want integer milliseconds", gotM)
	}
	if ms < 0 {
		t.Errorf("elapsed = %dms, want non-negative", ms)
	}
}

func TestSnitchWithoutURLIsNoop(t *testing.T) {
	cfg := config.Default()
	engine := newEagerEngine(cfg)

	env, err := Snitch(context.Background(), engine)
	if err != nil {
		t.Fatalf("Snitch: %v", err)
	}
	if env.Status != domain.StatusFinished {
		t.Errorf("status = %s, want finished without a configured endpoint", env.Status)
	}
}

func TestSnitchTaskNameIsHeartbeat(t *testing.T) {
	env := domain.NewTaskEnvelope(SnitchTaskName, nil, nil)
	if !env.IsSnitch() {
		t.Error("the built-in heartbeat task is not recognized as one")
	}
}
