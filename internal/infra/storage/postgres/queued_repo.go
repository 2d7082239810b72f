package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tmnhat/basketq/internal/core/domain"
)

// QueuedTaskRepo implements storage.QueuedTaskRepository using PostgreSQL.
type QueuedTaskRepo struct {
	db *DB
}

// NewQueuedTaskRepo creates a new PostgreSQL queued task repository.
func NewQueuedTaskRepo(db *DB) *QueuedTaskRepo {
	return &QueuedTaskRepo{db: db}
}

type queuedTaskRow struct {
	ID     int64     `db:"id"`
	When   time.Time `db:"when"`
	Name   string    `db:"name"`
	Args   []byte    `db:"args"`
	Kwargs []byte    `db:"kwargs"`
}

// Add stores a deferred task call.
func (r *QueuedTaskRepo) Add(ctx context.Context, qt *domain.QueuedTask) error {
	args, err := json.Marshal(qt.Args)
	if err != nil {
		return fmt.Errorf("failed to encode args: %w", err)
	}
	kwargs, err := json.Marshal(qt.Kwargs)
	if err != nil {
		return fmt.Errorf("failed to encode kwargs: %w", err)
	}
	if qt.Args == nil {
		args = []byte("[]")
	}
	if qt.Kwargs == nil {
		kwargs = []byte("{}")
	}

	query := `
		INSERT INTO queued_tasks (name, args, kwargs, "when")
		VALUES ($1, $2, $3, NOW())
		RETURNING id
	`
	if err := r.db.GetContext(ctx, &qt.ID, query, qt.Name, args, kwargs); err != nil {
		return fmt.Errorf("failed to add queued task: %w", err)
	}
	return nil
}

// GetBatch retrieves up to limit records in primary-key (FIFO) order.
func (r *QueuedTaskRepo) GetBatch(ctx context.Context, limit int) ([]*domain.QueuedTask, error) {
	query := `
		SELECT id, "when", name, args, kwargs
		FROM queued_tasks
		ORDER BY id ASC
		LIMIT $1
	`
	var rows []queuedTaskRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get queued tasks: %w", err)
	}

	tasks := make([]*domain.QueuedTask, 0, len(rows))
	for _, row := range rows {
		qt := &domain.QueuedTask{
			ID:   row.ID,
			When: row.When,
			Name: row.Name,
		}
		if err := json.Unmarshal(row.Args, &qt.Args); err != nil {
			return nil, fmt.Errorf("failed to decode args: %w", err)
		}
		if err := json.Unmarshal(row.Kwargs, &qt.Kwargs); err != nil {
			return nil, fmt.Errorf("failed to decode kwargs: %w", err)
		}
		tasks = append(tasks, qt)
	}
	return tasks, nil
}

// Delete removes a replayed record.
func (r *QueuedTaskRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM queued_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete queued task: %w", err)
	}
	return nil
}

// Count returns the number of deferred records.
func (r *QueuedTaskRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM queued_tasks`); err != nil {
		return 0, fmt.Errorf("failed to count queued tasks: %w", err)
	}
	return count, nil
}
