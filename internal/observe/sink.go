// Package observe provides the error-reporting side channel used by the
// task engine. Terminal, retried and ignored task errors are pushed here
// tagged with their disposition so their volume can be monitored.
package observe

import "log/slog"

// Sink receives task exceptions tagged with the action taken for them.
type Sink interface {
	// CaptureException reports err with an action tag: "ignored",
	// "retried" or "failed".
	CaptureException(err error, action string)
}

// LogSink reports exceptions through the process logger.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) CaptureException(err error, action string) {
	slog.Error("Task exception", "action", action, "error", err)
}

// NopSink discards all reports.
type NopSink struct{}

func (NopSink) CaptureException(err error, action string) {}
