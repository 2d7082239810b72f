package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FailedTask is the durable record created when an envelope reaches
// terminal failure. It is written exactly once per envelope and kept
// around for manual inspection and replay.
type FailedTask struct {
	ID     int64          `json:"id"`
	When   time.Time      `json:"when"`
	TaskID string         `json:"task_id"`
	Name   string         `json:"name"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
	Exc    string         `json:"exc"`   // string representation of the error
	Einfo  string         `json:"einfo"` // formatted stack/trace text
}

// FormattedCall renders a string that could be re-evaluated to repeat
// the original call.
func (f *FailedTask) FormattedCall() string {
	parts := make([]string, 0, len(f.Args)+len(f.Kwargs))
	for _, arg := range f.Args {
		parts = append(parts, fmt.Sprintf("%#v", arg))
	}
	keys := make([]string, 0, len(f.Kwargs))
	for k := range f.Kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%#v", k, f.Kwargs[k]))
	}
	return fmt.Sprintf("%s(%s)", f.Name, strings.Join(parts, ", "))
}

// QueuedTask is the durable record created by the maintenance gate when
// the system is in maintenance mode. A replay process re-submits each
// record as a fresh envelope, in primary-key order, once maintenance
// ends.
type QueuedTask struct {
	ID     int64          `json:"id"`
	When   time.Time      `json:"when"`
	Name   string         `json:"name"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}
