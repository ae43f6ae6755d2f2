package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticWorker is a minimal Worker for registry and runner tests.
type staticWorker struct {
	id         string
	taskType   TaskType
	output     string
	execErr    error
	valid      bool
	confidence float64
	panics     bool
}

func (w *staticWorker) ID() string     { return w.id }
func (w *staticWorker) Type() TaskType { return w.taskType }

func (w *staticWorker) BuildRequest(data map[string]any) (*Request, error) {
	return &Request{Prompt: "static"}, nil
}

func (w *staticWorker) Execute(ctx context.Context, taskID string, data map[string]any) (string, error) {
	if w.panics {
		panic("worker exploded")
	}
	return w.output, w.execErr
}

func (w *staticWorker) ValidateOutput(ctx context.Context, output string) (bool, float64, error) {
	return w.valid, w.confidence, nil
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()

	err := r.Register(TypeResearch, func(workerID string) Worker {
		return &staticWorker{id: workerID, taskType: TypeResearch}
	})
	require.NoError(t, err)

	w, err := r.Resolve(TypeResearch)
	require.NoError(t, err)
	assert.Equal(t, TypeResearch, w.Type())
	assert.NotEmpty(t, w.ID())

	// Each resolution mints a fresh worker id.
	w2, err := r.Resolve(TypeResearch)
	require.NoError(t, err)
	assert.NotEqual(t, w.ID(), w2.ID())
}

func TestRegistry_UnknownTypeRejected(t *testing.T) {
	r := NewRegistry()

	err := r.Register(TaskType("video_editing"), func(workerID string) Worker { return nil })
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = r.Resolve(TaskType("video_editing"))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestRegistry_UnregisteredTypeNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve(TypeDataAnalysis)
	assert.ErrorIs(t, err, ErrWorkerNotFound)
}

func TestRegistry_TypesSorted(t *testing.T) {
	r := NewRegistry()
	factory := func(workerID string) Worker { return &staticWorker{id: workerID} }
	require.NoError(t, r.Register(TypeResearch, factory))
	require.NoError(t, r.Register(TypeCustom, factory))
	require.NoError(t, r.Register(TypeEmailResponse, factory))

	assert.Equal(t, []TaskType{TypeCustom, TypeEmailResponse, TypeResearch}, r.Types())
}

func TestTaskType_Valid(t *testing.T) {
	for _, tt := range AllTaskTypes() {
		assert.True(t, tt.Valid(), string(tt))
	}
	assert.False(t, TaskType("").Valid())
	assert.False(t, TaskType("juggling").Valid())
}
