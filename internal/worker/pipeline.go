package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/taskd/internal/validation"
)

// GenerateFunc produces the raw output for a task payload.
type GenerateFunc func(ctx context.Context, data map[string]any) (string, error)

// PipelineWorker is a Worker built from a generate function and the
// validation pipeline. It is the standard way to plug domain logic into
// the orchestrator: callers supply generation, PipelineWorker supplies
// validation.
type PipelineWorker struct {
	id       string
	taskType TaskType
	generate GenerateFunc
	pipeline *validation.Pipeline
}

// NewPipelineWorker wires a generate function to a validation pipeline.
func NewPipelineWorker(id string, t TaskType, generate GenerateFunc, pipeline *validation.Pipeline) (*PipelineWorker, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if generate == nil {
		return nil, errors.New("generate function is required")
	}
	if pipeline == nil {
		return nil, errors.New("validation pipeline is required")
	}
	return &PipelineWorker{id: id, taskType: t, generate: generate, pipeline: pipeline}, nil
}

func (w *PipelineWorker) ID() string     { return w.id }
func (w *PipelineWorker) Type() TaskType { return w.taskType }

// BuildRequest derives the invocation request from the task payload.
// The prompt field of the payload becomes the request prompt; remaining
// string fields travel as metadata.
func (w *PipelineWorker) BuildRequest(data map[string]any) (*Request, error) {
	prompt, _ := data["prompt"].(string)
	if prompt == "" {
		prompt, _ = data["content"].(string)
	}
	if prompt == "" {
		return nil, errors.New("task payload missing prompt")
	}

	meta := make(map[string]string)
	for k, v := range data {
		if k == "prompt" {
			continue
		}
		if s, ok := v.(string); ok {
			meta[k] = s
		}
	}
	return &Request{Prompt: prompt, Metadata: meta}, nil
}

func (w *PipelineWorker) Execute(ctx context.Context, taskID string, data map[string]any) (string, error) {
	return w.generate(ctx, data)
}

// ValidateOutput runs the combined groundedness + gaming pipeline. The
// returned error carries the verdict findings when validation fails; a
// failing verdict is not an execution error.
func (w *PipelineWorker) ValidateOutput(ctx context.Context, output string) (bool, float64, error) {
	verdict := w.pipeline.Validate(ctx, output, nil)
	if !verdict.Passed && len(verdict.Errors) > 0 {
		return false, verdict.Confidence, fmt.Errorf("validation failed (%s): %s",
			verdict.Protocol, verdict.Errors[0])
	}
	return verdict.Passed, verdict.Confidence, nil
}

// EchoGenerator returns the payload's content field verbatim. It backs
// the built-in custom worker: submit content, get a validation verdict
// and confidence back through the normal task lifecycle.
func EchoGenerator(ctx context.Context, data map[string]any) (string, error) {
	content, _ := data["content"].(string)
	if content == "" {
		return "", errors.New("task payload missing content")
	}
	return content, nil
}
