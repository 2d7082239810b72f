package memory

import (
	"context"
	"sync"

	"github.com/tmnhat/basketq/internal/core/domain"
	"github.com/tmnhat/basketq/internal/infra/storage"
)

// MemoryStorage holds in-memory task records, used by tests and local
// runs without a database.
type MemoryStorage struct {
	failed []*domain.FailedTask
	queued []*domain.QueuedTask
	nextID int64
	mu     sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{nextID: 1}
}

// -----------------------------------------------------------------------------
// Failed Task Repository
// -----------------------------------------------------------------------------

type FailedTaskRepo struct {
	store *MemoryStorage
}

func NewFailedTaskRepo(store *MemoryStorage) *FailedTaskRepo {
	return &FailedTaskRepo{store: store}
}

func (r *FailedTaskRepo) Add(ctx context.Context, ft *domain.FailedTask) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	ft.ID = r.store.nextID
	r.store.nextID++
	r.store.failed = append(r.store.failed, ft)
	return nil
}

func (r *FailedTaskRepo) Get(ctx context.Context, id int64) (*domain.FailedTask, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, ft := range r.store.failed {
		if ft.ID == id {
			return ft, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (r *FailedTaskRepo) GetAll(ctx context.Context) ([]*domain.FailedTask, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.FailedTask, len(r.store.failed))
	copy(out, r.store.failed)
	return out, nil
}

func (r *FailedTaskRepo) Delete(ctx context.Context, id int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i, ft := range r.store.failed {
		if ft.ID == id {
			r.store.failed = append(r.store.failed[:i], r.store.failed[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (r *FailedTaskRepo) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.failed), nil
}

// -----------------------------------------------------------------------------
// Queued Task Repository
// -----------------------------------------------------------------------------

type QueuedTaskRepo struct {
	store *MemoryStorage
}

func NewQueuedTaskRepo(store *MemoryStorage) *QueuedTaskRepo {
	return &QueuedTaskRepo{store: store}
}

func (r *QueuedTaskRepo) Add(ctx context.Context, qt *domain.QueuedTask) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	qt.ID = r.store.nextID
	r.store.nextID++
	r.store.queued = append(r.store.queued, qt)
	return nil
}

func (r *QueuedTaskRepo) GetBatch(ctx context.Context, limit int) ([]*domain.QueuedTask, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	n := limit
	if n > len(r.store.queued) {
		n = len(r.store.queued)
	}
	out := make([]*domain.QueuedTask, n)
	copy(out, r.store.queued[:n])
	return out, nil
}

func (r *QueuedTaskRepo) Delete(ctx context.Context, id int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i, qt := range r.store.queued {
		if qt.ID == id {
			r.store.queued = append(r.store.queued[:i], r.store.queued[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (r *QueuedTaskRepo) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.queued), nil
}
