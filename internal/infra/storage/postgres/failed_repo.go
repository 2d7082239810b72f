package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tmnhat/basketq/internal/core/domain"
	"github.com/tmnhat/basketq/internal/infra/storage"
)

// FailedTaskRepo implements storage.FailedTaskRepository using PostgreSQL.
type FailedTaskRepo struct {
	db *DB
}

// NewFailedTaskRepo creates a new PostgreSQL failed task repository.
func NewFailedTaskRepo(db *DB) *FailedTaskRepo {
	return &FailedTaskRepo{db: db}
}

type failedTaskRow struct {
	ID     int64     `db:"id"`
	When   time.Time `db:"when"`
	TaskID string    `db:"task_id"`
	Name   string    `db:"name"`
	Args   []byte    `db:"args"`
	Kwargs []byte    `db:"kwargs"`
	Exc    string    `db:"exc"`
	Einfo  string    `db:"einfo"`
}

func (r failedTaskRow) toDomain() (*domain.FailedTask, error) {
	ft := &domain.FailedTask{
		ID:     r.ID,
		When:   r.When,
		TaskID: r.TaskID,
		Name:   r.Name,
		Exc:    r.Exc,
		Einfo:  r.Einfo,
	}
	if err := json.Unmarshal(r.Args, &ft.Args); err != nil {
		return nil, fmt.Errorf("failed to decode args: %w", err)
	}
	if err := json.Unmarshal(r.Kwargs, &ft.Kwargs); err != nil {
		return nil, fmt.Errorf("failed to decode kwargs: %w", err)
	}
	return ft, nil
}

// Add stores a terminal failure record.
func (r *FailedTaskRepo) Add(ctx context.Context, ft *domain.FailedTask) error {
	args, err := json.Marshal(ft.Args)
	if err != nil {
		return fmt.Errorf("failed to encode args: %w", err)
	}
	kwargs, err := json.Marshal(ft.Kwargs)
	if err != nil {
		return fmt.Errorf("failed to encode kwargs: %w", err)
	}
	if ft.Kwargs == nil {
		kwargs = []byte("{}")
	}
	if ft.Args == nil {
		args = []byte("[]")
	}

	query := `
		INSERT INTO failed_tasks (task_id, name, args, kwargs, exc, einfo, "when")
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id
	`
	if err := r.db.GetContext(ctx, &ft.ID, query, ft.TaskID, ft.Name, args, kwargs, ft.Exc, ft.Einfo); err != nil {
		return fmt.Errorf("failed to add failed task: %w", err)
	}
	return nil
}

// Get retrieves a failed task by id.
func (r *FailedTaskRepo) Get(ctx context.Context, id int64) (*domain.FailedTask, error) {
	query := `
		SELECT id, "when", task_id, name, args, kwargs, exc, einfo
		FROM failed_tasks
		WHERE id = $1
	`
	var row failedTaskRow
	err := r.db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failed task: %w", err)
	}
	return row.toDomain()
}

// GetAll retrieves all failed tasks, oldest first.
func (r *FailedTaskRepo) GetAll(ctx context.Context) ([]*domain.FailedTask, error) {
	query := `
		SELECT id, "when", task_id, name, args, kwargs, exc, einfo
		FROM failed_tasks
		ORDER BY id ASC
	`
	var rows []failedTaskRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to get failed tasks: %w", err)
	}

	tasks := make([]*domain.FailedTask, 0, len(rows))
	for _, row := range rows {
		ft, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, ft)
	}
	return tasks, nil
}

// Delete removes a failed task record.
func (r *FailedTaskRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM failed_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete failed task: %w", err)
	}
	return nil
}

// Count returns the number of failed task records.
func (r *FailedTaskRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM failed_tasks`); err != nil {
		return 0, fmt.Errorf("failed to count failed tasks: %w", err)
	}
	return count, nil
}
