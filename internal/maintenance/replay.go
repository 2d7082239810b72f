// Package maintenance replays task calls that were deferred while the
// system was in maintenance mode.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmnhat/basketq/internal/core/config"
	"github.com/tmnhat/basketq/internal/infra/storage"
	"github.com/tmnhat/basketq/internal/taskq"
)

// ErrMaintenanceActive is returned when replay is attempted while
// maintenance mode is still on.
var ErrMaintenanceActive = errors.New("unavailable in maintenance mode")

// Processor re-submits deferred task records as fresh envelopes, in
// primary-key (FIFO) order, deleting each record once re-enqueued.
type Processor struct {
	queued storage.QueuedTaskRepository
	engine *taskq.Engine
	flags  config.Flags
}

func NewProcessor(queued storage.QueuedTaskRepository, engine *taskq.Engine, flags config.Flags) *Processor {
	return &Processor{queued: queued, engine: engine, flags: flags}
}

// Process replays up to limit records. Returns how many were replayed.
func (p *Processor) Process(ctx context.Context, limit int) (int, error) {
	if p.flags.MaintenanceMode() {
		return 0, ErrMaintenanceActive
	}

	batch, err := p.queued.GetBatch(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to load deferred tasks: %w", err)
	}

	count := 0
	for _, rec := range batch {
		task, ok := p.engine.Task(rec.Name)
		if !ok {
			// Leave the record in place; a later deploy may know the task.
			slog.Warn("Deferred task is not registered, skipping", "task", rec.Name, "id", rec.ID)
			continue
		}

		if _, err := task.DelayOpts(ctx, taskq.CallOptions{Args: rec.Args, Kwargs: rec.Kwargs}); err != nil {
			return count, fmt.Errorf("failed to replay task %s: %w", rec.Name, err)
		}

		// Forget the old record only after the fresh envelope is queued.
		if err := p.queued.Delete(ctx, rec.ID); err != nil {
			return count, fmt.Errorf("failed to delete deferred task %d: %w", rec.ID, err)
		}
		count++
	}

	return count, nil
}

// Remaining returns how many deferred records are still waiting.
func (p *Processor) Remaining(ctx context.Context) (int, error) {
	return p.queued.Count(ctx)
}
