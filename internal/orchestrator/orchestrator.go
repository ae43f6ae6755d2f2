// Package orchestrator dispatches queued tasks to pluggable workers under
// a bounded concurrency limit, applies validation verdicts, and writes the
// resulting transitions back to the task queue.
//
// The caller contract is no-throw: no worker fault or validation failure
// ever propagates out of a dispatch; every execution path resolves to a
// TaskResult and a terminal ledger transition.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/taskd/internal/ledger"
	"github.com/fyrsmithlabs/taskd/internal/queue"
	"github.com/fyrsmithlabs/taskd/internal/worker"
)

const instrumentationName = "github.com/fyrsmithlabs/taskd/internal/orchestrator"

// DefaultMaxConcurrentWorkers bounds simultaneous worker executions when
// no override is configured.
const DefaultMaxConcurrentWorkers = 3

// Config configures the orchestrator.
type Config struct {
	// MaxConcurrentWorkers is the concurrency limiter size (default 3).
	MaxConcurrentWorkers int

	// DispatchRate optionally rate-limits dispatch calls per second;
	// zero means unlimited.
	DispatchRate float64
}

// DispatchSpec is a task submission.
type DispatchSpec struct {
	Type       string         `json:"type"`
	SourceData map[string]any `json:"source_data"`
}

// DispatchResponse is the caller-visible outcome of a dispatch.
type DispatchResponse struct {
	TaskID  string             `json:"task_id,omitempty"`
	Success bool               `json:"success"`
	Status  string             `json:"status,omitempty"`
	Error   string             `json:"error,omitempty"`
	Result  *worker.TaskResult `json:"result,omitempty"`
}

// QueueStats combines ledger metadata with live orchestrator state.
type QueueStats struct {
	ledger.Metadata
	ActiveWorkers   int               `json:"active_workers"`
	RegisteredTypes []worker.TaskType `json:"registered_task_types"`
}

// Orchestrator is the concurrency-bounded dispatcher.
type Orchestrator struct {
	queue    *queue.Queue
	registry *worker.Registry
	logger   *zap.Logger
	tracer   trace.Tracer

	sem     chan struct{}
	limiter *rate.Limiter

	mu     sync.Mutex
	active map[string]worker.TaskType // worker id -> type
}

// New creates an orchestrator over the given queue and worker registry.
func New(q *queue.Queue, registry *worker.Registry, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if q == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("worker registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	max := cfg.MaxConcurrentWorkers
	if max <= 0 {
		max = DefaultMaxConcurrentWorkers
	}

	o := &Orchestrator{
		queue:    q,
		registry: registry,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		sem:      make(chan struct{}, max),
		active:   make(map[string]worker.TaskType),
	}
	if cfg.DispatchRate > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.DispatchRate), 1)
	}

	logger.Info("orchestrator initialized",
		zap.Int("max_concurrent_workers", max),
		zap.Int("registered_types", len(registry.Types())))
	return o, nil
}

// Dispatch creates a task for the submission and either runs it to completion
// (wait=true) or schedules it for background execution. A missing type is
// a caller error reported in the response; no task is created.
func (o *Orchestrator) Dispatch(ctx context.Context, spec DispatchSpec, priority int, wait bool) DispatchResponse {
	ctx, span := o.tracer.Start(ctx, "orchestrator.dispatch")
	defer span.End()

	if spec.Type == "" {
		DispatchesTotal.WithLabelValues("rejected").Inc()
		return DispatchResponse{Success: false, Error: "missing task type"}
	}
	span.SetAttributes(attribute.String("task.type", spec.Type))

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			DispatchesTotal.WithLabelValues("rejected").Inc()
			return DispatchResponse{Success: false, Error: "dispatch cancelled: " + err.Error()}
		}
	}

	task, err := o.queue.Create(ctx, spec.Type, spec.SourceData, priority)
	if err != nil {
		DispatchesTotal.WithLabelValues("rejected").Inc()
		return DispatchResponse{Success: false, Error: "failed to create task: " + err.Error()}
	}

	if !wait {
		// Fire-and-forget: detach from the caller's cancellation.
		bg := context.WithoutCancel(ctx)
		go func() {
			result := o.runTask(bg, task)
			DispatchesTotal.WithLabelValues(string(result.Status)).Inc()
		}()
		DispatchesTotal.WithLabelValues("queued").Inc()
		return DispatchResponse{TaskID: task.ID, Success: true, Status: "queued"}
	}

	result := o.runTask(ctx, task)
	DispatchesTotal.WithLabelValues(string(result.Status)).Inc()
	return DispatchResponse{
		TaskID:  task.ID,
		Success: result.Status == worker.ResultCompleted,
		Result:  &result,
	}
}

// runTask executes a single task: resolve a worker, acquire a concurrency
// slot, run, and map the result back onto the ledger.
//
// The slot is acquired before any worker-visible side effect and released
// on every exit path. Worker-not-found fails the task without ever
// acquiring a slot.
func (o *Orchestrator) runTask(ctx context.Context, task *ledger.Task) worker.TaskResult {
	ctx, span := o.tracer.Start(ctx, "orchestrator.run_task",
		trace.WithAttributes(attribute.String("task.id", task.ID)))
	defer span.End()

	w, err := o.registry.Resolve(worker.TaskType(task.Type))
	if err != nil {
		// Terminal: no retry can find a handler that does not exist.
		msg := fmt.Sprintf("no worker available for task type: %s", task.Type)
		if _, ferr := o.queue.FailTerminal(ctx, task.ID, msg); ferr != nil {
			o.logger.Warn("failed to mark task failed",
				zap.String("task_id", task.ID), zap.Error(ferr))
		}
		return worker.FailedResult(task.ID, "unknown", msg)
	}

	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		msg := "dispatch cancelled before execution: " + ctx.Err().Error()
		o.failTask(ctx, task.ID, msg)
		return worker.FailedResult(task.ID, string(w.Type()), msg)
	}
	defer func() { <-o.sem }()

	ActiveWorkers.Inc()
	defer ActiveWorkers.Dec()

	o.trackWorker(w.ID(), w.Type())
	defer o.untrackWorker(w.ID())

	if _, err := o.queue.MarkInProgress(ctx, task.ID, w.ID()); err != nil {
		o.logger.Warn("failed to mark task in progress",
			zap.String("task_id", task.ID),
			zap.Error(err))
	}

	o.logger.Info("task assigned",
		zap.String("task_id", task.ID),
		zap.String("worker_id", w.ID()))

	start := time.Now()
	result := worker.Run(ctx, w, task.ID, task.SourceData, o.logger)
	TaskDuration.Observe(time.Since(start).Seconds())

	o.applyResult(ctx, task.ID, result)

	o.logger.Info("task finished",
		zap.String("task_id", task.ID),
		zap.String("status", string(result.Status)),
		zap.Float64("confidence", result.Confidence))
	return result
}

// applyResult maps a worker TaskResult onto the corresponding queue
// transition.
func (o *Orchestrator) applyResult(ctx context.Context, taskID string, result worker.TaskResult) {
	switch result.Status {
	case worker.ResultCompleted:
		validationStatus := "passed"
		if !result.ValidationPassed {
			validationStatus = "failed"
		}
		output := map[string]any{"output": result.Output}
		if _, err := o.queue.MarkCompleted(ctx, taskID, output, result.Confidence, validationStatus); err != nil {
			o.logger.Warn("failed to mark task completed",
				zap.String("task_id", taskID), zap.Error(err))
		}

	case worker.ResultPendingReview:
		status := ledger.StatusPendingReview
		vs := "needs_review"
		if _, err := o.queue.Update(ctx, taskID, queue.Update{
			Status:           &status,
			WorkerOutput:     map[string]any{"output": result.Output},
			Confidence:       &result.Confidence,
			ValidationStatus: &vs,
		}); err != nil {
			o.logger.Warn("failed to mark task pending review",
				zap.String("task_id", taskID), zap.Error(err))
		}

	default:
		msg := result.Error
		if msg == "" {
			msg = "unknown error"
		}
		o.failTask(ctx, taskID, msg)
	}
}

// failTask records a failure through the queue's retry-aware transition.
func (o *Orchestrator) failTask(ctx context.Context, taskID, msg string) {
	if _, outcome, err := o.queue.MarkFailed(ctx, taskID, msg); err != nil {
		o.logger.Warn("failed to mark task failed",
			zap.String("task_id", taskID), zap.Error(err))
	} else {
		o.logger.Info("task failure recorded",
			zap.String("task_id", taskID),
			zap.String("outcome", outcome.String()))
	}
}

// ProcessQueue runs all (or up to maxTasks) currently pending tasks
// concurrently, each independently subject to the concurrency bound.
// Failures are isolated per task and never abort the batch.
func (o *Orchestrator) ProcessQueue(ctx context.Context, maxTasks int) ([]worker.TaskResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.process_queue")
	defer span.End()

	pending, err := o.queue.Pending(ctx, "")
	if err != nil {
		return nil, err
	}
	if maxTasks > 0 && len(pending) > maxTasks {
		pending = pending[:maxTasks]
	}
	if len(pending) == 0 {
		o.logger.Debug("no pending tasks in queue")
		return nil, nil
	}

	o.logger.Info("processing pending tasks", zap.Int("count", len(pending)))

	resultsChan := make(chan worker.TaskResult, len(pending))
	var wg sync.WaitGroup

	for _, task := range pending {
		wg.Add(1)
		go func(t *ledger.Task) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					resultsChan <- worker.FailedResult(t.ID, "unknown",
						fmt.Sprintf("task execution panic: %v", r))
				}
			}()
			resultsChan <- o.runTask(ctx, t)
		}(task)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	results := make([]worker.TaskResult, 0, len(pending))
	for result := range resultsChan {
		results = append(results, result)
	}
	return results, nil
}

// Cancel marks a non-terminal task cancelled on external request.
func (o *Orchestrator) Cancel(ctx context.Context, taskID string) (*ledger.Task, error) {
	return o.queue.Cancel(ctx, taskID)
}

// GetTaskStatus returns the ledger record for a task.
func (o *Orchestrator) GetTaskStatus(ctx context.Context, taskID string) (*ledger.Task, error) {
	return o.queue.Get(ctx, taskID)
}

// ListPending lists pending tasks, optionally filtered by type.
func (o *Orchestrator) ListPending(ctx context.Context, taskType string) ([]*ledger.Task, error) {
	return o.queue.Pending(ctx, taskType)
}

// Stats returns ledger metadata plus live orchestrator state.
func (o *Orchestrator) Stats(ctx context.Context) (QueueStats, error) {
	meta, err := o.queue.Stats(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	return QueueStats{
		Metadata:        meta,
		ActiveWorkers:   o.ActiveCount(),
		RegisteredTypes: o.registry.Types(),
	}, nil
}

// ActiveCount returns the number of workers currently executing.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

func (o *Orchestrator) trackWorker(id string, t worker.TaskType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active[id] = t
}

func (o *Orchestrator) untrackWorker(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, id)
}
