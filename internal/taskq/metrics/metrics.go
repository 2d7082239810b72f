package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TaskRuns tracks total invocations per task
	TaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketq_task_runs_total",
			Help: "Total number of task invocations",
		},
		[]string{"task"},
	)

	// TasksTotal tracks invocations across all tasks
	TasksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "basketq_tasks_total",
			Help: "Total number of task invocations across all tasks",
		},
	)

	// TaskSuccess tracks clean completions per task
	TaskSuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketq_task_success_total",
			Help: "Total number of successful task completions",
		},
		[]string{"task"},
	)

	// SuccessTotal tracks clean completions across all tasks
	SuccessTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "basketq_success_total",
			Help: "Total number of successful completions across all tasks",
		},
	)

	// TaskFailure tracks terminal failures per task
	TaskFailure = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketq_task_failure_total",
			Help: "Total number of terminal task failures",
		},
		[]string{"task"},
	)

	// FailureTotal tracks terminal failures across all tasks
	FailureTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "basketq_failure_total",
			Help: "Total number of terminal failures across all tasks",
		},
	)

	// TaskRetry tracks rescheduled attempts per task
	TaskRetry = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketq_task_retry_total",
			Help: "Total number of task retries scheduled",
		},
		[]string{"task"},
	)

	// RetryTotal tracks rescheduled attempts across all tasks
	RetryTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "basketq_retry_total",
			Help: "Total number of retries scheduled across all tasks",
		},
	)

	// TaskRetriesLeft tracks retries at each remaining-retry level
	TaskRetriesLeft = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketq_task_retries_left_total",
			Help: "Retries observed per remaining-retry level",
		},
		[]string{"task", "retries_left"},
	)

	// TaskRetryMax tracks retry exhaustion per task
	TaskRetryMax = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketq_task_retry_max_total",
			Help: "Total number of tasks that exhausted their retries",
		},
		[]string{"task"},
	)

	// RetryMaxTotal tracks retry exhaustion across all tasks
	RetryMaxTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "basketq_retry_max_total",
			Help: "Total number of retry exhaustions across all tasks",
		},
	)

	// TaskQueued tracks maintenance-mode deferrals per task
	TaskQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketq_task_queued_total",
			Help: "Total number of task calls deferred during maintenance",
		},
		[]string{"task"},
	)

	// TaskNotQueued tracks read-only drops per task
	TaskNotQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketq_task_not_queued_total",
			Help: "Total number of task calls dropped in read-only maintenance",
		},
		[]string{"task"},
	)

	// TaskDuration tracks total task latency (queue wait + execution)
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "basketq_task_duration_seconds",
			Help:    "Total task latency from enqueue to completion",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	// DurationTotal tracks total task latency across all tasks
	DurationTotal = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "basketq_duration_seconds",
			Help:    "Total task latency across all tasks",
			Buckets: prometheus.DefBuckets,
		},
	)

	// TaskQueueLatency tracks caller-supplied end-to-end latency on the
	// first attempt only
	TaskQueueLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "basketq_task_latency_seconds",
			Help:    "End-to-end latency from the original caller to first execution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)
)
