package taskq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tmnhat/basketq/internal/core/domain"
	"github.com/tmnhat/basketq/internal/infra/storage"
	"github.com/tmnhat/basketq/internal/observe"
	"github.com/tmnhat/basketq/internal/taskq/metrics"
)

// ExceptionHandler is invoked by the worker when a task attempt fails,
// before the retry-vs-fail transition is committed. Returning false
// stops the chain.
//
// Handlers run on the uncommitted in-memory envelope: its status holds
// the transition the worker is about to make, and mutations to
// RetriesLeft steer that decision.
type ExceptionHandler interface {
	Handle(ctx context.Context, env *domain.TaskEnvelope, taskErr error, outcome Outcome, stack []byte) bool
}

// TaskFailureHandler routes failed attempts: ignorable errors are
// dropped with no further attempts, retryable ones are reported and left
// for the backend to reschedule, and terminal ones are persisted as
// FailedTask records.
type TaskFailureHandler struct {
	failed        storage.FailedTaskRepository
	sink          observe.Sink
	storeFailures bool
}

func NewTaskFailureHandler(failed storage.FailedTaskRepository, sink observe.Sink, storeFailures bool) *TaskFailureHandler {
	return &TaskFailureHandler{failed: failed, sink: sink, storeFailures: storeFailures}
}

func (h *TaskFailureHandler) Handle(ctx context.Context, env *domain.TaskEnvelope, taskErr error, outcome Outcome, stack []byte) bool {
	// Heartbeat tasks are exempt from failure bookkeeping.
	if env.IsSnitch() {
		return false
	}

	switch outcome {
	case OutcomeIgnore:
		// Force the failure to be terminal with no further attempts.
		env.RetriesLeft = 0
		h.sink.CaptureException(taskErr, "ignored")

	case OutcomeRetry:
		taskName := env.Name
		metrics.TaskRetry.WithLabelValues(taskName).Inc()
		metrics.TaskRetriesLeft.WithLabelValues(taskName, strconv.Itoa(env.RetriesLeft)).Inc()
		metrics.RetryTotal.Inc()

		// An explicit retry request is not an error worth paging on.
		if !isRetryRequest(taskErr) {
			h.sink.CaptureException(taskErr, "retried")
		}

	case OutcomeFail:
		metrics.TaskRetryMax.WithLabelValues(env.Name).Inc()
		metrics.RetryMaxTotal.Inc()

		if h.storeFailures && h.failed != nil {
			// Created at most once per envelope: the worker calls this
			// handler exactly once per terminal transition.
			rec := &domain.FailedTask{
				When:   time.Now(),
				TaskID: env.ID,
				Name:   env.Name,
				Args:   env.Args,
				Kwargs: env.Kwargs,
				Exc:    errRepr(taskErr),
				Einfo:  fmt.Sprintf("%v\n\n%s", taskErr, stack),
			}
			if err := h.failed.Add(ctx, rec); err != nil {
				h.sink.CaptureException(fmt.Errorf("failed to store task failure: %w", err), "failed")
			}
		}

		if !isRetryRequest(taskErr) {
			h.sink.CaptureException(taskErr, "failed")
		}
	}

	// Stop the chain here.
	return false
}

func isRetryRequest(err error) bool {
	var retryErr *RetryError
	return errors.As(err, &retryErr)
}

// errRepr renders an error the way the failure record keeps it: type
// plus quoted message.
func errRepr(err error) string {
	return fmt.Sprintf("%T(%q)", err, err.Error())
}
