package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	schemaVersion = "1.0"
	stateFileName = "task_list.json"
)

// ErrStateCorrupted is logged (never returned to callers of Load) when the
// state file cannot be parsed; the store falls back to a fresh state.
var ErrStateCorrupted = errors.New("ledger state file corrupted")

// Metadata holds aggregate counts recomputed on every save.
type Metadata struct {
	Version        string    `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	LastModified   time.Time `json:"last_modified"`
	TotalTasks     int       `json:"total_tasks"`
	CompletedTasks int       `json:"completed_tasks"`
	FailedTasks    int       `json:"failed_tasks"`
}

// State is the full persisted ledger document.
type State struct {
	Tasks    []*Task  `json:"tasks"`
	Metadata Metadata `json:"metadata"`
}

// Find returns the task with the given id, or nil.
func (st *State) Find(id string) *Task {
	for _, t := range st.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Store persists the task ledger to a single JSON file.
//
// All mutations go through Mutate, which serializes the load-modify-save
// cycle behind a process-wide mutex so concurrent dispatches never lose
// updates. This design assumes a single owning process; there is no
// cross-process locking.
type Store struct {
	mu       sync.Mutex
	dir      string
	filePath string
	logger   *zap.Logger
}

// NewStore creates a store rooted at dir, creating the directory and an
// initial empty state file if needed.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config", "taskd", "state")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	s := &Store{
		dir:      dir,
		filePath: filepath.Join(dir, stateFileName),
		logger:   logger,
	}

	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		if err := s.save(newState()); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.filePath
}

// Load returns the current state. A missing or corrupted state file yields
// a freshly initialized empty state rather than an error; corruption is
// logged and the damaged file is left in place until the next save.
func (s *Store) Load() *State {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read ledger state, starting fresh",
				zap.String("path", s.filePath),
				zap.Error(err))
		}
		return newState()
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("ledger state unreadable, starting fresh",
			zap.String("path", s.filePath),
			zap.Error(fmt.Errorf("%w: %v", ErrStateCorrupted, err)))
		return newState()
	}
	if st.Tasks == nil {
		st.Tasks = []*Task{}
	}
	return &st
}

// Mutate runs fn inside the store lock on a freshly loaded state and
// persists the result. If fn returns an error nothing is written.
func (s *Store) Mutate(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.Load()
	if err := fn(st); err != nil {
		return err
	}
	return s.save(st)
}

// save recomputes aggregate metadata and writes the state atomically:
// write to a temp file, then rename over the previous file.
func (s *Store) save(st *State) error {
	st.Metadata.Version = schemaVersion
	st.Metadata.LastModified = time.Now().UTC()
	st.Metadata.TotalTasks = len(st.Tasks)
	st.Metadata.CompletedTasks = 0
	st.Metadata.FailedTasks = 0
	for _, t := range st.Tasks {
		switch t.Status {
		case StatusCompleted:
			st.Metadata.CompletedTasks++
		case StatusFailed:
			st.Metadata.FailedTasks++
		}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger state: %w", err)
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write ledger state: %w", err)
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename ledger state: %w", err)
	}
	return nil
}

func newState() *State {
	now := time.Now().UTC()
	return &State{
		Tasks: []*Task{},
		Metadata: Metadata{
			Version:      schemaVersion,
			CreatedAt:    now,
			LastModified: now,
		},
	}
}
