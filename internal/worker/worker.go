// Package worker defines the contract every pluggable task executor
// implements, the closed task-type set, and the shared execution runner
// that maps a worker invocation onto a TaskResult.
//
// Workers are stateless per call: each Execute invocation is equivalent to
// a fresh session with no memory of prior invocations. Concrete worker
// implementations live outside this module and are wired in through the
// Registry.
package worker

import (
	"context"
	"time"
)

// TaskType classifies tasks. The set is closed: registrations and
// resolutions outside it are rejected explicitly rather than silently
// missing in a lookup.
type TaskType string

const (
	TypeEmailResponse      TaskType = "email_response"
	TypeCodeImplementation TaskType = "code_implementation"
	TypeResearch           TaskType = "research"
	TypeContentWriting     TaskType = "content_writing"
	TypeDataAnalysis       TaskType = "data_analysis"
	TypeCustom             TaskType = "custom"
)

// AllTaskTypes returns the closed task-type set.
func AllTaskTypes() []TaskType {
	return []TaskType{
		TypeEmailResponse,
		TypeCodeImplementation,
		TypeResearch,
		TypeContentWriting,
		TypeDataAnalysis,
		TypeCustom,
	}
}

// Valid reports whether t is a member of the closed set.
func (t TaskType) Valid() bool {
	switch t {
	case TypeEmailResponse, TypeCodeImplementation, TypeResearch,
		TypeContentWriting, TypeDataAnalysis, TypeCustom:
		return true
	}
	return false
}

// Request describes a single worker invocation, built fresh per task.
type Request struct {
	Prompt       string            `json:"prompt"`
	Model        string            `json:"model,omitempty"`
	WorkingDir   string            `json:"working_dir,omitempty"`
	AllowedTools []string          `json:"allowed_tools,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Worker is the capability interface implemented by external executors.
type Worker interface {
	// ID identifies this worker instance.
	ID() string

	// Type returns the task type this worker handles.
	Type() TaskType

	// BuildRequest constructs the invocation request for a task payload.
	BuildRequest(data map[string]any) (*Request, error)

	// Execute runs the task and returns its raw output. Implementations
	// must be stateless across calls.
	Execute(ctx context.Context, taskID string, data map[string]any) (string, error)

	// ValidateOutput judges the output, returning validity, a confidence
	// score in [0,1], and an optional finding.
	ValidateOutput(ctx context.Context, output string) (bool, float64, error)
}

// ResultStatus is the terminal disposition of a worker execution.
type ResultStatus string

const (
	ResultCompleted     ResultStatus = "completed"
	ResultFailed        ResultStatus = "failed"
	ResultPendingReview ResultStatus = "pending_review"
)

// TaskResult bridges a worker execution back to the ledger.
type TaskResult struct {
	TaskID           string       `json:"task_id"`
	WorkerType       string       `json:"worker_type"`
	Status           ResultStatus `json:"status"`
	Output           string       `json:"output,omitempty"`
	Confidence       float64      `json:"confidence"`
	ValidationPassed bool         `json:"validation_passed"`
	Error            string       `json:"error,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// FailedResult builds a failed TaskResult with the given error message.
func FailedResult(taskID, workerType, errMsg string) TaskResult {
	return TaskResult{
		TaskID:     taskID,
		WorkerType: workerType,
		Status:     ResultFailed,
		Error:      errMsg,
		CreatedAt:  time.Now().UTC(),
	}
}
