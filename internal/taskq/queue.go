package taskq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tmnhat/basketq/internal/core/domain"
)

// Queue is a thin adapter over the durable redis queue. Ready envelopes
// sit in a list, delayed/retrying envelopes in a sorted set scored by
// their ready-at time, and each job mirrors its status into a hash so
// tooling can inspect it.
//
// Dequeue moves the envelope into a per-consumer processing list instead
// of destroying it, so a worker crash between pop and acknowledgment
// leaves the raw payload in redis. RequeueOrphans drains that list back
// into the ready queue when the consumer restarts; a job interrupted
// mid-flight is delivered again rather than lost.
type Queue struct {
	name     string
	consumer string
	rdb      *redis.Client

	mu       sync.Mutex
	inflight map[string][]byte // job ID -> raw payload sitting in the processing list
}

// NewQueue creates a queue adapter bound to an existing connection. The
// consumer identity defaults to the hostname so a restarted worker
// reclaims its own orphaned jobs.
func NewQueue(name string, rdb *redis.Client) *Queue {
	if name == "" {
		name = "default"
	}
	consumer, err := os.Hostname()
	if err != nil || consumer == "" {
		consumer = "worker"
	}
	return &Queue{
		name:     name,
		consumer: consumer,
		rdb:      rdb,
		inflight: make(map[string][]byte),
	}
}

func (q *Queue) Name() string { return q.name }

// Key helpers
func (q *Queue) readyKey() string {
	return fmt.Sprintf("basketq:queue:%s", q.name)
}

func (q *Queue) scheduledKey() string {
	return fmt.Sprintf("basketq:scheduled:%s", q.name)
}

func (q *Queue) jobKey(id string) string {
	return fmt.Sprintf("basketq:job:%s", id)
}

func (q *Queue) processingKey() string {
	return fmt.Sprintf("basketq:processing:%s:%s", q.name, q.consumer)
}

// Enqueue submits an envelope to the ready queue. atFront puts it at the
// head instead of the tail.
func (q *Queue) Enqueue(ctx context.Context, env *domain.TaskEnvelope, atFront bool) error {
	env.Status = domain.StatusQueued
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	push := q.rdb.RPush
	if atFront {
		push = q.rdb.LPush
	}
	if err := push(ctx, q.readyKey(), raw).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", env.ID, err)
	}

	return q.SetStatus(ctx, env, nil)
}

// ScheduleRetry places an envelope in the delayed set, to be drained
// back into the ready queue once delay has elapsed.
func (q *Queue) ScheduleRetry(ctx context.Context, env *domain.TaskEnvelope, delay time.Duration) error {
	env.Status = domain.StatusScheduled
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	readyAt := time.Now().Add(delay).Unix()
	if err := q.rdb.ZAdd(ctx, q.scheduledKey(), redis.Z{
		Score:  float64(readyAt),
		Member: raw,
	}).Err(); err != nil {
		return fmt.Errorf("failed to schedule retry for job %s: %w", env.ID, err)
	}

	return q.SetStatus(ctx, env, map[string]any{"retry_at": readyAt})
}

// PopBlocking waits up to timeout for the next ready envelope, moving it
// into the processing list until it is acknowledged.
func (q *Queue) PopBlocking(ctx context.Context, timeout time.Duration) (*domain.TaskEnvelope, bool, error) {
	raw, err := q.rdb.BLMove(ctx, q.readyKey(), q.processingKey(), "LEFT", "RIGHT", timeout).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("blmove failed: %w", err)
	}
	return q.claim([]byte(raw))
}

// Pop returns the next ready envelope without blocking, moving it into
// the processing list until it is acknowledged.
func (q *Queue) Pop(ctx context.Context) (*domain.TaskEnvelope, bool, error) {
	raw, err := q.rdb.LMove(ctx, q.readyKey(), q.processingKey(), "LEFT", "RIGHT").Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lmove failed: %w", err)
	}
	return q.claim([]byte(raw))
}

// claim decodes a dequeued payload and remembers the raw bytes so Ack
// can remove exactly this entry from the processing list later.
func (q *Queue) claim(raw []byte) (*domain.TaskEnvelope, bool, error) {
	env, ok, err := q.decode(raw)
	if err != nil || !ok {
		// Unparseable payload; drop it from the processing list so it
		// doesn't come back forever through orphan recovery.
		_ = q.rdb.LRem(context.Background(), q.processingKey(), 1, raw).Err()
		return nil, false, err
	}
	q.mu.Lock()
	q.inflight[env.ID] = raw
	q.mu.Unlock()
	return env, true, nil
}

// Ack removes a completed envelope from the processing list. Until this
// is called the raw payload survives in redis and a restarted consumer
// will requeue it.
func (q *Queue) Ack(ctx context.Context, env *domain.TaskEnvelope) error {
	q.mu.Lock()
	raw, ok := q.inflight[env.ID]
	delete(q.inflight, env.ID)
	q.mu.Unlock()
	if !ok {
		return nil
	}
	if err := q.rdb.LRem(ctx, q.processingKey(), 1, raw).Err(); err != nil {
		return fmt.Errorf("failed to ack job %s: %w", env.ID, err)
	}
	return nil
}

// RequeueOrphans moves everything left in this consumer's processing
// list back into the ready queue. Called on worker startup: anything
// still there was in flight when the previous run died.
func (q *Queue) RequeueOrphans(ctx context.Context) (int, error) {
	members, err := q.rdb.LRange(ctx, q.processingKey(), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("lrange failed: %w", err)
	}

	moved := 0
	for _, raw := range members {
		env, ok, err := q.decode([]byte(raw))
		if err != nil || !ok {
			_ = q.rdb.LRem(ctx, q.processingKey(), 1, raw).Err()
			continue
		}
		if err := q.rdb.RPush(ctx, q.readyKey(), raw).Err(); err != nil {
			return moved, fmt.Errorf("failed to requeue orphaned job %s: %w", env.ID, err)
		}
		if err := q.rdb.LRem(ctx, q.processingKey(), 1, raw).Err(); err != nil {
			return moved, fmt.Errorf("lrem failed: %w", err)
		}
		env.Status = domain.StatusQueued
		_ = q.SetStatus(ctx, env, map[string]any{"requeued_at": time.Now().Unix()})
		moved++
	}
	return moved, nil
}

func (q *Queue) decode(raw []byte) (*domain.TaskEnvelope, bool, error) {
	var env domain.TaskEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, fmt.Errorf("bad envelope JSON: %w", err)
	}
	return &env, true, nil
}

// DrainDue moves envelopes whose delay has elapsed from the scheduled
// set back into the ready queue. Returns how many were moved.
func (q *Queue) DrainDue(ctx context.Context, now time.Time) (int, error) {
	members, err := q.rdb.ZRangeByScore(ctx, q.scheduledKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprint(now.Unix()),
		Count: 100,
	}).Result()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("zrangebyscore failed: %w", err)
	}

	moved := 0
	for _, raw := range members {
		env, ok, err := q.decode([]byte(raw))
		if err != nil || !ok {
			// Unparseable member; drop it so it doesn't wedge the drain.
			_ = q.rdb.ZRem(ctx, q.scheduledKey(), raw).Err()
			continue
		}

		env.Status = domain.StatusQueued
		requeued, err := json.Marshal(env)
		if err != nil {
			continue
		}
		if err := q.rdb.RPush(ctx, q.readyKey(), requeued).Err(); err != nil {
			return moved, fmt.Errorf("failed to requeue job %s: %w", env.ID, err)
		}
		if err := q.rdb.ZRem(ctx, q.scheduledKey(), raw).Err(); err != nil {
			return moved, fmt.Errorf("zrem failed: %w", err)
		}
		_ = q.SetStatus(ctx, env, nil)
		moved++
	}
	return moved, nil
}

// SetStatus mirrors the envelope status into the per-job hash. extra
// fields are merged in. A non-zero ResultTTL bounds how long a finished
// job's record is kept.
func (q *Queue) SetStatus(ctx context.Context, env *domain.TaskEnvelope, extra map[string]any) error {
	fields := map[string]any{
		"status":       string(env.Status),
		"task_name":    env.Name,
		"retries_left": env.RetriesLeft,
		"updated_at":   time.Now().Unix(),
	}
	for k, v := range extra {
		fields[k] = v
	}

	key := q.jobKey(env.ID)
	if err := q.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("failed to set job status: %w", err)
	}

	if env.Status == domain.StatusFinished && env.ResultTTL > 0 {
		_ = q.rdb.Expire(ctx, key, time.Duration(env.ResultTTL)*time.Second).Err()
	}
	return nil
}

// JobStatus returns the mirrored status hash for a job.
func (q *Queue) JobStatus(ctx context.Context, id string) (map[string]string, error) {
	return q.rdb.HGetAll(ctx, q.jobKey(id)).Result()
}

// Depth returns the number of ready envelopes.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.readyKey()).Result()
}

// ScheduledCount returns the number of envelopes waiting on a delay.
func (q *Queue) ScheduledCount(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.scheduledKey()).Result()
}

// Health checks queue backend connectivity.
func (q *Queue) Health(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
