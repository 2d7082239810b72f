package storage

import (
	"context"
	"errors"

	"github.com/tmnhat/basketq/internal/core/domain"
)

var (
	// ErrNotFound is returned when a record doesn't exist
	ErrNotFound = errors.New("record not found")
)

// FailedTaskRepository handles durable failed-task records.
type FailedTaskRepository interface {
	// Add stores a terminal failure record
	Add(ctx context.Context, task *domain.FailedTask) error

	// Get retrieves a failed task by id
	Get(ctx context.Context, id int64) (*domain.FailedTask, error)

	// GetAll retrieves all failed tasks, oldest first
	GetAll(ctx context.Context) ([]*domain.FailedTask, error)

	// Delete removes a failed task record
	Delete(ctx context.Context, id int64) error

	// Count returns the number of failed task records
	Count(ctx context.Context) (int, error)
}

// QueuedTaskRepository handles the maintenance-mode deferral queue.
type QueuedTaskRepository interface {
	// Add stores a deferred task call
	Add(ctx context.Context, task *domain.QueuedTask) error

	// GetBatch retrieves up to limit records in primary-key (FIFO) order
	GetBatch(ctx context.Context, limit int) ([]*domain.QueuedTask, error)

	// Delete removes a replayed record
	Delete(ctx context.Context, id int64) error

	// Count returns the number of deferred records
	Count(ctx context.Context) (int, error)
}
