package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/tmnhat/basketq/internal/core/domain"
	"github.com/tmnhat/basketq/internal/infra/storage"
)

func TestFailedTaskRepo(t *testing.T) {
	repo := NewFailedTaskRepo(NewMemoryStorage())
	ctx := context.Background()

	rec := &domain.FailedTask{Name: "crm.update_user", TaskID: "job-1"}
	if err := repo.Add(ctx, rec); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if rec.ID == 0 {
		t.Error("Add did not assign an ID")
	}

	got, err := repo.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TaskID != "job-1" {
		t.Errorf("got %s", got.TaskID)
	}

	if n, _ := repo.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
	if err := repo.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, rec.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, rec.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestQueuedTaskRepoBatchOrder(t *testing.T) {
	repo := NewQueuedTaskRepo(NewMemoryStorage())
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if err := repo.Add(ctx, &domain.QueuedTask{Name: name}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	batch, err := repo.GetBatch(ctx, 2)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if len(batch) != 2 || batch[0].Name != "a" || batch[1].Name != "b" {
		t.Errorf("batch = %v, want first two in insertion order", batch)
	}

	// Limits beyond the stored count return everything.
	all, _ := repo.GetBatch(ctx, 10)
	if len(all) != 3 {
		t.Errorf("full batch = %d records, want 3", len(all))
	}
}
