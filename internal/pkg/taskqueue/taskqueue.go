package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	redisc "github.com/smartnotes/core/internal/pkg/redis"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Finished reports whether the status is terminal.
func (s TaskStatus) Finished() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskFinished = errors.New("task already finished")
)

// Task is a unit of background work stored in Redis.
type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Status    TaskStatus      `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	DedupKey  string          `json:"dedup_key,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

const (
	keyPrefix   = "smartnotes:task:"
	keyIndex    = "smartnotes:tasks:index"  // sorted set: score=created_at, member=task_id
	keyDedupSet = "smartnotes:tasks:dedup:" // hash: dedup_key -> task_id
	taskTTL     = 7 * 24 * time.Hour
)

// Service manages the Redis-backed task queue.
type Service struct {
	rc         *redisc.Client
	now        func() time.Time
	staleAfter time.Duration
}

func NewService(rc *redisc.Client) *Service {
	return &Service{rc: rc, now: time.Now}
}

// SetStaleAfter makes Enqueue treat an unfinished task that has not been
// updated for d as dead. Zero disables the check.
func (s *Service) SetStaleAfter(d time.Duration) { s.staleAfter = d }

func (s *Service) taskKey(id string) string { return keyPrefix + id }

// maxDedupAttempts bounds the claim loop when stale dedup entries keep
// getting replaced concurrently.
const maxDedupAttempts = 3

// releaseDedup removes a dedup entry only if it still points at the given task.
var releaseDedup = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
	return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0
`)

// Enqueue creates a new task. While a task with the same type and dedupKey is
// unfinished, that task is returned instead and created is false.
// The task is written before the dedup key is claimed, so a dedup entry
// always points at a stored task.
func (s *Service) Enqueue(ctx context.Context, taskType string, payload interface{}, dedupKey string) (task *Task, created bool, err error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	task = &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Payload:   payloadBytes,
		Status:    TaskPending,
		DedupKey:  dedupKey,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(task)
	if err != nil {
		return nil, false, err
	}

	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, taskTTL)
	pipe.ZAdd(ctx, keyIndex, redis.Z{
		Score:  float64(task.CreatedAt.UnixMilli()),
		Member: task.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, err
	}
	if dedupKey == "" {
		return task, true, nil
	}

	existing, err := s.claimDedup(ctx, task)
	if err != nil || existing != nil {
		s.discard(ctx, task.ID)
		return existing, false, err
	}
	return task, true, nil
}

// claimDedup binds task.DedupKey to task. It returns the live task already
// holding the key, or nil when task now holds it.
func (s *Service) claimDedup(ctx context.Context, task *Task) (*Task, error) {
	hash := keyDedupSet + task.Type
	rdb := s.rc.Raw()
	for attempt := 0; attempt < maxDedupAttempts; attempt++ {
		ok, err := rdb.HSetNX(ctx, hash, task.DedupKey, task.ID).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, rdb.Expire(ctx, hash, taskTTL).Err()
		}

		holderID, err := rdb.HGet(ctx, hash, task.DedupKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		holder, err := s.GetByID(ctx, holderID)
		if err != nil {
			return nil, err
		}
		if holder != nil && !holder.Status.Finished() && !s.isStale(holder) {
			return holder, nil
		}
		if err := releaseDedup.Run(ctx, rdb, []string{hash}, task.DedupKey, holderID).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("claim dedup key %q: too much contention", task.DedupKey)
}

// releaseOwnDedup queues the removal of task's dedup entry unless another
// task has claimed the key since.
func releaseOwnDedup(ctx context.Context, pipe redis.Pipeliner, task *Task) {
	if task.DedupKey == "" {
		return
	}
	releaseDedup.Eval(ctx, pipe, []string{keyDedupSet + task.Type}, task.DedupKey, task.ID)
}

func (s *Service) isStale(task *Task) bool {
	return s.staleAfter > 0 && s.now().Sub(task.UpdatedAt) > s.staleAfter
}

// discard removes a task that lost the dedup race. Errors are ignored; the
// record expires with its TTL anyway.
func (s *Service) discard(ctx context.Context, id string) {
	pipe := s.rc.Raw().TxPipeline()
	pipe.Del(ctx, s.taskKey(id))
	pipe.ZRem(ctx, keyIndex, id)
	_, _ = pipe.Exec(ctx)
}

// FailUnfinished marks every pending or running task as failed with reason
// and releases its dedup key. It is meant for startup, when no worker of this
// process can still own those tasks.
func (s *Service) FailUnfinished(ctx context.Context, reason string) (int, error) {
	ids, err := s.rc.Raw().ZRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if err != nil {
			return failed, err
		}
		if task == nil || task.Status.Finished() {
			continue
		}
		if err := s.UpdateStatus(ctx, id, TaskFailed, nil, reason); err != nil {
			return failed, err
		}
		failed++
	}
	return failed, nil
}

// GetByID retrieves a task by its ID. A missing task is (nil, nil).
func (s *Service) GetByID(ctx context.Context, id string) (*Task, error) {
	data, err := s.rc.Raw().Get(ctx, s.taskKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateStatus sets a task's status and optional result/error.
func (s *Service) UpdateStatus(ctx context.Context, id string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return ErrTaskNotFound
	}

	task.Status = status
	task.UpdatedAt = s.now()
	task.Error = errMsg

	if result != nil {
		if task.Result, err = json.Marshal(result); err != nil {
			return fmt.Errorf("encode task result: %w", err)
		}
	}

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(id), data, taskTTL)
	if status.Finished() {
		releaseOwnDedup(ctx, pipe, task)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Claim moves a pending task to running. It reports false when the task was
// cancelled or removed before a worker picked it up.
func (s *Service) Claim(ctx context.Context, id string) (bool, error) {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if task == nil || task.Status != TaskPending {
		return false, nil
	}
	return true, s.UpdateStatus(ctx, id, TaskRunning, nil, "")
}

// Finish records the outcome of a running task unless it was cancelled in
// the meantime.
func (s *Service) Finish(ctx context.Context, id string, result interface{}, runErr error) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return ErrTaskNotFound
	}
	if task.Status == TaskCancelled {
		return nil
	}
	if runErr != nil {
		return s.UpdateStatus(ctx, id, TaskFailed, nil, runErr.Error())
	}
	return s.UpdateStatus(ctx, id, TaskCompleted, result, "")
}

// List returns tasks matching optional filters, ordered by creation time descending.
func (s *Service) List(ctx context.Context, page, size int, taskType *string, status *TaskStatus) ([]*Task, int64, error) {
	ids, err := s.rc.Raw().ZRevRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return nil, 0, err
	}

	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if err != nil || task == nil {
			continue
		}
		if taskType != nil && task.Type != *taskType {
			continue
		}
		if status != nil && task.Status != *status {
			continue
		}
		tasks = append(tasks, task)
	}

	total := int64(len(tasks))
	start := (page - 1) * size
	end := start + size
	if start >= len(tasks) {
		return []*Task{}, total, nil
	}
	if end > len(tasks) {
		end = len(tasks)
	}
	return tasks[start:end], total, nil
}

// Cancel marks a task as cancelled. Running tasks keep running but their
// result is discarded by Finish.
func (s *Service) Cancel(ctx context.Context, id string) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return ErrTaskNotFound
	}
	if task.Status.Finished() {
		return ErrTaskFinished
	}
	return s.UpdateStatus(ctx, id, TaskCancelled, nil, "cancelled by user")
}

// DeleteByID removes a single task by ID.
func (s *Service) DeleteByID(ctx context.Context, id string) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return ErrTaskNotFound
	}
	pipe := s.rc.Raw().TxPipeline()
	pipe.Del(ctx, s.taskKey(id))
	pipe.ZRem(ctx, keyIndex, id)
	releaseOwnDedup(ctx, pipe, task)
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteFinished removes completed/failed/cancelled tasks created before
// the cutoff (all of them when before is zero) and reports how many went.
// Index entries whose task already expired are dropped too.
func (s *Service) DeleteFinished(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.rc.Raw().ZRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	removed := 0
	pipe := s.rc.Raw().TxPipeline()
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if err != nil {
			continue
		}
		if task == nil {
			pipe.ZRem(ctx, keyIndex, id)
			continue
		}
		if !task.Status.Finished() {
			continue
		}
		if !before.IsZero() && !task.CreatedAt.Before(before) {
			continue
		}
		pipe.Del(ctx, s.taskKey(id))
		pipe.ZRem(ctx, keyIndex, id)
		releaseOwnDedup(ctx, pipe, task)
		removed++
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return removed, nil
}
