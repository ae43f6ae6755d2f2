package worker

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Errors for registry operations.
var (
	ErrWorkerNotFound = errors.New("no worker registered for task type")
	ErrUnknownType    = errors.New("task type outside the known set")
)

// Factory creates a fresh worker instance for one task execution.
type Factory func(workerID string) Worker

// Registry maps the closed task-type set to worker factories. Unknown
// types never resolve silently: Resolve returns ErrWorkerNotFound for a
// known-but-unregistered type and ErrUnknownType for anything outside the
// set. Both are terminal for the task; no retry applies.
type Registry struct {
	mu        sync.RWMutex
	factories map[TaskType]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[TaskType]Factory)}
}

// Register binds a factory to a task type. Types outside the closed set
// are rejected.
func (r *Registry) Register(t TaskType, f Factory) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if f == nil {
		return errors.New("factory is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[t] = f
	return nil
}

// Resolve creates a fresh worker for the task type. Each resolution mints
// a new worker id so instances stay stateless per task.
func (r *Registry) Resolve(t TaskType) (Worker, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}

	r.mu.RLock()
	f, ok := r.factories[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkerNotFound, t)
	}
	return f(newWorkerID(t)), nil
}

// Types returns the registered task types in sorted order.
func (r *Registry) Types() []TaskType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]TaskType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// newWorkerID builds an instance id like "research_142301_b2c4".
func newWorkerID(t TaskType) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:4]
	return fmt.Sprintf("%s_%s_%s", t, time.Now().UTC().Format("150405"), suffix)
}
