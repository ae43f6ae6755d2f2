package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// reviewThreshold: outputs below this confidence are routed to human
// review even when the worker's own validation passed.
const reviewThreshold = 0.5

// Run executes one task through a worker: execute, validate, and map the
// outcome onto a TaskResult.
//
// Run never panics and never lets a worker fault escape: any error or
// panic from the worker becomes a failed TaskResult. Status mapping:
// valid output at or above the review threshold completes; produced but
// invalid or low-confidence output goes to pending_review; everything
// else fails.
func Run(ctx context.Context, w Worker, taskID string, data map[string]any, logger *zap.Logger) (result TaskResult) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(
		zap.String("worker_id", w.ID()),
		zap.String("worker_type", string(w.Type())),
		zap.String("task_id", taskID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("worker panicked", zap.Any("panic", r))
			result = FailedResult(taskID, string(w.Type()), fmt.Sprintf("worker panic: %v", r))
		}
	}()

	log.Info("starting task")

	output, err := w.Execute(ctx, taskID, data)
	if err != nil {
		log.Warn("worker execution failed", zap.Error(err))
		return FailedResult(taskID, string(w.Type()), err.Error())
	}
	if output == "" {
		return FailedResult(taskID, string(w.Type()), "no output generated by worker")
	}

	valid, confidence, verr := w.ValidateOutput(ctx, output)

	status := ResultCompleted
	if !valid || confidence < reviewThreshold {
		status = ResultPendingReview
	}

	errMsg := ""
	if verr != nil {
		errMsg = verr.Error()
	}

	log.Info("task finished",
		zap.String("status", string(status)),
		zap.Float64("confidence", confidence))

	return TaskResult{
		TaskID:           taskID,
		WorkerType:       string(w.Type()),
		Status:           status,
		Output:           output,
		Confidence:       confidence,
		ValidationPassed: valid,
		Error:            errMsg,
		CreatedAt:        time.Now().UTC(),
	}
}
