// Package queue implements the task queue facade over the durable ledger:
// creation, lookup, priority-ordered retrieval, status transitions, and
// bounded-retry bookkeeping.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/ledger"
)

const instrumentationName = "github.com/fyrsmithlabs/taskd/internal/queue"

// Errors for queue operations.
var (
	ErrTaskNotFound = errors.New("task not found")
	ErrNoPending    = errors.New("no pending tasks")
	ErrTerminal     = errors.New("task already in a terminal state")
)

// Notification events published on task lifecycle changes.
const (
	EventTaskCreated = "task_created"
	EventTaskUpdated = "task_updated"
)

// Notifier publishes task lifecycle events. Delivery is best-effort;
// implementations must never return control-flow errors to the queue.
type Notifier interface {
	Publish(event string, task *ledger.Task)
}

// FailOutcome reports which branch MarkFailed took, so callers do not
// have to re-read task status to learn whether the task was re-queued.
type FailOutcome int

const (
	// OutcomeRequeued means retries remained: retry_count was incremented
	// and the task returned to pending.
	OutcomeRequeued FailOutcome = iota

	// OutcomeExhausted means retries were spent and the task is
	// terminally failed.
	OutcomeExhausted
)

func (o FailOutcome) String() string {
	if o == OutcomeRequeued {
		return "requeued"
	}
	return "exhausted"
}

// Queue provides query and mutation operations over the task ledger.
type Queue struct {
	store      *ledger.Store
	notifier   Notifier
	logger     *zap.Logger
	maxRetries int

	tracer            trace.Tracer
	meter             metric.Meter
	createCounter     metric.Int64Counter
	transitionCounter metric.Int64Counter
}

// New creates a queue backed by store. notifier may be nil to disable
// notifications; logger may be nil.
func New(store *ledger.Store, notifier Notifier, logger *zap.Logger) (*Queue, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &Queue{
		store:      store,
		notifier:   notifier,
		logger:     logger,
		maxRetries: ledger.DefaultMaxRetries,
		tracer:     otel.Tracer(instrumentationName),
		meter:      otel.Meter(instrumentationName),
	}
	q.initMetrics()
	return q, nil
}

// SetMaxRetries overrides the retry budget given to newly created tasks.
// Negative values are ignored.
func (q *Queue) SetMaxRetries(n int) {
	if n >= 0 {
		q.maxRetries = n
	}
}

func (q *Queue) initMetrics() {
	var err error
	q.createCounter, err = q.meter.Int64Counter("taskd.queue.tasks_created",
		metric.WithDescription("Number of tasks created"))
	if err != nil {
		q.logger.Warn("failed to create tasks_created counter", zap.Error(err))
	}
	q.transitionCounter, err = q.meter.Int64Counter("taskd.queue.transitions",
		metric.WithDescription("Number of task status transitions"))
	if err != nil {
		q.logger.Warn("failed to create transitions counter", zap.Error(err))
	}
}

// Create allocates a new pending task, persists it, and returns the record.
func (q *Queue) Create(ctx context.Context, taskType string, sourceData map[string]any, priority int) (*ledger.Task, error) {
	ctx, span := q.tracer.Start(ctx, "queue.create")
	defer span.End()
	span.SetAttributes(attribute.String("task.type", taskType))

	task := ledger.NewTask(taskType, sourceData, priority)
	task.MaxRetries = q.maxRetries

	err := q.store.Mutate(func(st *ledger.State) error {
		st.Tasks = append(st.Tasks, task)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist task: %w", err)
	}

	if q.createCounter != nil {
		q.createCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", taskType)))
	}
	q.logger.Info("task created",
		zap.String("task_id", task.ID),
		zap.String("task_type", taskType),
		zap.Int("priority", task.Priority))

	q.publish(EventTaskCreated, task)
	return task, nil
}

// Get returns a task by id, or ErrTaskNotFound.
func (q *Queue) Get(ctx context.Context, id string) (*ledger.Task, error) {
	st := q.store.Load()
	if t := st.Find(id); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// Update merges the provided fields into the task and bumps updated_at.
// Unset fields are left untouched.
type Update struct {
	Status           *ledger.Status
	AssignedWorker   *string
	WorkerOutput     map[string]any
	ValidationStatus *string
	Confidence       *float64
	Error            *string
}

// Update applies a partial update to the task with the given id.
func (q *Queue) Update(ctx context.Context, id string, upd Update) (*ledger.Task, error) {
	ctx, span := q.tracer.Start(ctx, "queue.update")
	defer span.End()

	var updated *ledger.Task
	err := q.store.Mutate(func(st *ledger.State) error {
		t := st.Find(id)
		if t == nil {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		applyUpdate(t, upd)
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	if q.transitionCounter != nil && upd.Status != nil {
		q.transitionCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(*upd.Status))))
	}

	q.publish(EventTaskUpdated, updated)
	return updated, nil
}

// Pending returns tasks with status pending or queued, optionally filtered
// by type (empty string matches all). Ordering: descending priority, ties
// broken by ascending creation time. This is the sole ordering guarantee
// the dispatcher may rely on.
func (q *Queue) Pending(ctx context.Context, taskType string) ([]*ledger.Task, error) {
	st := q.store.Load()

	var tasks []*ledger.Task
	for _, t := range st.Tasks {
		if t.Status != ledger.StatusPending && t.Status != ledger.StatusQueued {
			continue
		}
		if taskType != "" && t.Type != taskType {
			continue
		}
		tasks = append(tasks, t)
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Next returns the highest-priority pending task, or ErrNoPending.
func (q *Queue) Next(ctx context.Context, taskType string) (*ledger.Task, error) {
	pending, err := q.Pending(ctx, taskType)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, ErrNoPending
	}
	return pending[0], nil
}

// MarkInProgress transitions the task to in_progress and binds the worker.
func (q *Queue) MarkInProgress(ctx context.Context, id, workerID string) (*ledger.Task, error) {
	status := ledger.StatusInProgress
	return q.Update(ctx, id, Update{
		Status:         &status,
		AssignedWorker: &workerID,
	})
}

// MarkCompleted transitions the task to completed with its output.
func (q *Queue) MarkCompleted(ctx context.Context, id string, output map[string]any, confidence float64, validationStatus string) (*ledger.Task, error) {
	status := ledger.StatusCompleted
	return q.Update(ctx, id, Update{
		Status:           &status,
		WorkerOutput:     output,
		Confidence:       &confidence,
		ValidationStatus: &validationStatus,
	})
}

// MarkFailed records a failure. If retries remain the task is re-queued:
// retry_count is incremented and status returns to pending. Only when
// retries are exhausted does the task transition to failed. The returned
// FailOutcome reports which branch was taken.
func (q *Queue) MarkFailed(ctx context.Context, id, errMsg string) (*ledger.Task, FailOutcome, error) {
	ctx, span := q.tracer.Start(ctx, "queue.mark_failed")
	defer span.End()

	var (
		updated *ledger.Task
		outcome FailOutcome
	)
	err := q.store.Mutate(func(st *ledger.State) error {
		t := st.Find(id)
		if t == nil {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		if t.RetryCount < t.MaxRetries {
			t.RetryCount++
			t.Status = ledger.StatusPending
			outcome = OutcomeRequeued
		} else {
			t.Status = ledger.StatusFailed
			outcome = OutcomeExhausted
		}
		t.Error = errMsg
		touch(t)
		updated = t
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	q.logger.Info("task failed",
		zap.String("task_id", id),
		zap.String("outcome", outcome.String()),
		zap.Int("retry_count", updated.RetryCount),
		zap.String("error", errMsg))
	if q.transitionCounter != nil {
		q.transitionCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(updated.Status)),
			attribute.String("outcome", outcome.String())))
	}

	q.publish(EventTaskUpdated, updated)
	return updated, outcome, nil
}

// FailTerminal transitions a task directly to failed, bypassing the
// retry budget. Used for terminal faults such as a missing worker for
// the task's type, where no retry can succeed.
func (q *Queue) FailTerminal(ctx context.Context, id, errMsg string) (*ledger.Task, error) {
	status := ledger.StatusFailed
	t, err := q.Update(ctx, id, Update{Status: &status, Error: &errMsg})
	if err != nil {
		return nil, err
	}
	q.logger.Info("task terminally failed",
		zap.String("task_id", id),
		zap.String("error", errMsg))
	return t, nil
}

// Cancel transitions a task to cancelled. Cancellation is an external
// request only; tasks already in a terminal state are rejected with
// ErrTerminal. An in_progress task is marked cancelled in the ledger but
// its running worker is not interrupted.
func (q *Queue) Cancel(ctx context.Context, id string) (*ledger.Task, error) {
	var updated *ledger.Task
	err := q.store.Mutate(func(st *ledger.State) error {
		t := st.Find(id)
		if t == nil {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		if t.Status.Terminal() {
			return fmt.Errorf("%w: task %s is %s", ErrTerminal, id, t.Status)
		}
		t.Status = ledger.StatusCancelled
		touch(t)
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	q.logger.Info("task cancelled", zap.String("task_id", id))
	q.publish(EventTaskUpdated, updated)
	return updated, nil
}

// Stats returns the ledger's aggregate metadata.
func (q *Queue) Stats(ctx context.Context) (ledger.Metadata, error) {
	st := q.store.Load()
	return st.Metadata, nil
}

// publish sends a notification, swallowing any downstream failure; the
// notification channel must never affect task state.
func (q *Queue) publish(event string, task *ledger.Task) {
	if q.notifier == nil || task == nil {
		return
	}
	q.notifier.Publish(event, task)
}
