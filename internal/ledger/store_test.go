package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestNewStore_InitializesStateFile(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if _, err := os.Stat(s.Path()); err != nil {
		t.Fatalf("state file not created: %v", err)
	}

	st := s.Load()
	if len(st.Tasks) != 0 {
		t.Errorf("fresh state has %d tasks, want 0", len(st.Tasks))
	}
	if st.Metadata.Version != schemaVersion {
		t.Errorf("version = %q, want %q", st.Metadata.Version, schemaVersion)
	}
}

func TestStore_MutateRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	task := NewTask("research", map[string]any{"topic": "rate limiters"}, 8)
	if err := s.Mutate(func(st *State) error {
		st.Tasks = append(st.Tasks, task)
		return nil
	}); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	st := s.Load()
	got := st.Find(task.ID)
	if got == nil {
		t.Fatalf("task %s not found after reload", task.ID)
	}
	if got.Type != "research" || got.Priority != 8 || got.Status != StatusPending {
		t.Errorf("reloaded task = %+v", got)
	}
	if got.SourceData["topic"] != "rate limiters" {
		t.Errorf("source_data not preserved: %v", got.SourceData)
	}
	if st.Metadata.TotalTasks != 1 {
		t.Errorf("total_tasks = %d, want 1", st.Metadata.TotalTasks)
	}
}

func TestStore_MutateErrorWritesNothing(t *testing.T) {
	s, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if err := s.Mutate(func(st *State) error {
		st.Tasks = append(st.Tasks, NewTask("custom", nil, 5))
		return os.ErrInvalid
	}); err == nil {
		t.Fatal("Mutate returned nil, want error")
	}

	if n := len(s.Load().Tasks); n != 0 {
		t.Errorf("failed mutation persisted %d tasks, want 0", n)
	}
}

func TestStore_CorruptedFileFallsBackToFresh(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, stateFileName), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	st := s.Load()
	if st == nil {
		t.Fatal("Load returned nil for corrupted file")
	}
	if len(st.Tasks) != 0 {
		t.Errorf("corrupted state yielded %d tasks, want fresh empty state", len(st.Tasks))
	}
}

func TestStore_SaveRecomputesCounts(t *testing.T) {
	s, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	err = s.Mutate(func(st *State) error {
		done := NewTask("custom", nil, 5)
		done.Status = StatusCompleted
		failed := NewTask("custom", nil, 5)
		failed.Status = StatusFailed
		pending := NewTask("custom", nil, 5)
		st.Tasks = append(st.Tasks, done, failed, pending)
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	meta := s.Load().Metadata
	if meta.TotalTasks != 3 || meta.CompletedTasks != 1 || meta.FailedTasks != 1 {
		t.Errorf("metadata = %+v, want total=3 completed=1 failed=1", meta)
	}
}

func TestTask_UnmarshalAppliesDefaults(t *testing.T) {
	// Record written before max_retries/priority/auto_continue/max_sessions
	// existed.
	old := []byte(`{
		"task_id": "email_response_20240101_120000_abc123",
		"task_type": "email_response",
		"status": "pending",
		"source_data": {"sender": "a@b.c"}
	}`)

	var task Task
	if err := json.Unmarshal(old, &task); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if task.MaxRetries != DefaultMaxRetries {
		t.Errorf("max_retries = %d, want %d", task.MaxRetries, DefaultMaxRetries)
	}
	if task.Priority != DefaultPriority {
		t.Errorf("priority = %d, want %d", task.Priority, DefaultPriority)
	}
	if !task.AutoContinue {
		t.Error("auto_continue = false, want true")
	}
	if task.MaxSessions != DefaultMaxSessions {
		t.Errorf("max_sessions = %d, want %d", task.MaxSessions, DefaultMaxSessions)
	}
}

func TestTask_UnmarshalKeepsExplicitValues(t *testing.T) {
	rec := []byte(`{
		"task_id": "t1",
		"task_type": "custom",
		"status": "pending",
		"max_retries": 0,
		"priority": 2,
		"auto_continue": false,
		"max_sessions": 5
	}`)

	var task Task
	if err := json.Unmarshal(rec, &task); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if task.MaxRetries != 0 {
		t.Errorf("explicit max_retries=0 overridden to %d", task.MaxRetries)
	}
	if task.Priority != 2 || task.AutoContinue || task.MaxSessions != 5 {
		t.Errorf("explicit values not preserved: %+v", task)
	}
}

func TestNewTask_PriorityHandling(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero uses default", 0, DefaultPriority},
		{"below range clamps", -3, 1},
		{"above range clamps", 99, 10},
		{"in range kept", 7, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewTask("custom", nil, tt.in).Priority; got != tt.want {
				t.Errorf("priority = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewTask_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewTask("research", nil, 5).ID
		if seen[id] {
			t.Fatalf("duplicate task id %s", id)
		}
		seen[id] = true
	}
}
