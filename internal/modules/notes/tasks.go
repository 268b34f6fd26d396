package notes

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smartnotes/core/internal/pkg/taskqueue"
)

const (
	TaskTypeGenerate = "notes:generate"

	// InterruptedMessage is the error of tasks found unfinished at startup.
	InterruptedMessage = "interrupted by restart"

	staleMargin = time.Minute
)

// TaskResult is stored on a completed task.
type TaskResult struct {
	RecordID string `json:"record_id"`
}

// Tasks runs pipelines in the background and tracks them in the task queue.
type Tasks struct {
	queue    *taskqueue.Service
	pipeline *Pipeline
	timeout  time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func NewTasks(queue *taskqueue.Service, pipeline *Pipeline, timeout time.Duration, logger *zap.Logger) *Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	// A run never outlives its timeout, so an unfinished task idle for longer
	// has lost its worker.
	queue.SetStaleAfter(timeout + staleMargin)
	return &Tasks{queue: queue, pipeline: pipeline, timeout: timeout, logger: logger.Named("notes-tasks")}
}

// RecoverInterrupted fails the tasks a previous process left pending or
// running, so their video and language can be queued again.
func (t *Tasks) RecoverInterrupted(ctx context.Context) (int, error) {
	n, err := t.queue.FailUnfinished(ctx, InterruptedMessage)
	if n > 0 {
		t.logger.Warn("failed interrupted tasks", zap.Int("count", n))
	}
	return n, err
}

func dedupKey(run *Run) string {
	return run.VideoID + ":" + run.Language
}

// Enqueue validates req and queues a run. A pending or running task for the
// same video and language is returned instead of a new one.
func (t *Tasks) Enqueue(ctx context.Context, req Request) (*taskqueue.Task, error) {
	run, err := t.pipeline.Prepare(req, nil)
	if err != nil {
		return nil, err
	}
	payload := Request{URL: run.URL, Language: run.Language}
	task, created, err := t.queue.Enqueue(ctx, TaskTypeGenerate, payload, dedupKey(run))
	if err != nil {
		return nil, err
	}
	if created {
		t.wg.Add(1)
		go t.execute(task.ID, run)
	}
	return task, nil
}

func (t *Tasks) execute(taskID string, run *Run) {
	defer t.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	claimed, err := t.queue.Claim(ctx, taskID)
	if err != nil {
		t.logger.Warn("claim task failed", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	if !claimed {
		return
	}

	rec, runErr := t.pipeline.ExecuteRun(ctx, run)
	var result interface{}
	if runErr == nil {
		result = TaskResult{RecordID: rec.ID}
	}
	if err := t.queue.Finish(ctx, taskID, result, runErr); err != nil {
		t.logger.Warn("finish task failed", zap.String("task_id", taskID), zap.Error(err))
	}
}

func (t *Tasks) Get(ctx context.Context, id string) (*taskqueue.Task, error) {
	return t.queue.GetByID(ctx, id)
}

func (t *Tasks) List(ctx context.Context, page, size int, status *taskqueue.TaskStatus) ([]*taskqueue.Task, int64, error) {
	taskType := TaskTypeGenerate
	return t.queue.List(ctx, page, size, &taskType, status)
}

func (t *Tasks) Cancel(ctx context.Context, id string) error {
	return t.queue.Cancel(ctx, id)
}

func (t *Tasks) Delete(ctx context.Context, id string) error {
	return t.queue.DeleteByID(ctx, id)
}

// PurgeFinished drops finished tasks older than maxAge.
func (t *Tasks) PurgeFinished(ctx context.Context, maxAge time.Duration) (int, error) {
	return t.queue.DeleteFinished(ctx, time.Now().Add(-maxAge))
}

// Wait blocks until every background run has returned.
func (t *Tasks) Wait() {
	t.wg.Wait()
}
