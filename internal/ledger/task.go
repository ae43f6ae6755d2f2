// Package ledger provides the durable, crash-safe task ledger.
//
// The ledger is an append/mutate-only audit trail: task records are never
// deleted, only created or field-updated. State is persisted as a single
// JSON document with atomic temp-write-and-rename semantics so a crash
// mid-save never leaves a partially written file.
package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents a task lifecycle state.
type Status string

const (
	StatusPending       Status = "pending"
	StatusQueued        Status = "queued"
	StatusInProgress    Status = "in_progress"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusPendingReview Status = "pending_review"
	StatusCancelled     Status = "cancelled"
)

// Defaults applied to records that predate the corresponding fields.
const (
	DefaultMaxRetries  = 3
	DefaultPriority    = 5
	DefaultMaxSessions = 50
)

// Task is a unit of work tracked by the ledger.
type Task struct {
	ID        string    `json:"task_id"`
	Type      string    `json:"task_type"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SourceData map[string]any `json:"source_data"`

	AssignedWorker   string         `json:"assigned_worker,omitempty"`
	WorkerOutput     map[string]any `json:"worker_output,omitempty"`
	ValidationStatus string         `json:"validation_status,omitempty"`
	Confidence       float64        `json:"confidence"`
	Error            string         `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
	Priority   int `json:"priority"`

	// Autonomous session fields. Optional; defaults preserved for
	// backward compatibility with older ledger files.
	SessionID       string `json:"session_id,omitempty"`
	AutonomousMode  bool   `json:"autonomous_mode"`
	FeatureListPath string `json:"feature_list_path,omitempty"`
	AutoContinue    bool   `json:"auto_continue"`
	MaxSessions     int    `json:"max_sessions"`
}

// NewTask creates a pending task with a fresh ID and timestamps.
// Priority 0 means "use the default"; otherwise it is clamped to the
// 1-10 range (10 = highest).
func NewTask(taskType string, sourceData map[string]any, priority int) *Task {
	if priority == 0 {
		priority = DefaultPriority
	}
	if priority < 1 {
		priority = 1
	}
	if priority > 10 {
		priority = 10
	}
	if sourceData == nil {
		sourceData = map[string]any{}
	}
	now := time.Now().UTC()
	return &Task{
		ID:           newTaskID(taskType, now),
		Type:         taskType,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		SourceData:   sourceData,
		MaxRetries:   DefaultMaxRetries,
		Priority:     priority,
		AutoContinue: true,
		MaxSessions:  DefaultMaxSessions,
	}
}

// newTaskID builds a globally unique id from type, creation time, and a
// random suffix, e.g. "email_response_20260829_142301_a3f9c1".
func newTaskID(taskType string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return fmt.Sprintf("%s_%s_%s", taskType, now.Format("20060102_150405"), suffix)
}

// Terminal reports whether the status admits no further automatic transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// UnmarshalJSON decodes a task, applying documented defaults for fields
// absent in older ledger records: max_retries=3, priority=5,
// auto_continue=true, max_sessions=50.
func (t *Task) UnmarshalJSON(data []byte) error {
	type alias Task
	aux := struct {
		MaxRetries   *int  `json:"max_retries"`
		Priority     *int  `json:"priority"`
		AutoContinue *bool `json:"auto_continue"`
		MaxSessions  *int  `json:"max_sessions"`
		*alias
	}{alias: (*alias)(t)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	t.MaxRetries = DefaultMaxRetries
	if aux.MaxRetries != nil {
		t.MaxRetries = *aux.MaxRetries
	}
	t.Priority = DefaultPriority
	if aux.Priority != nil {
		t.Priority = *aux.Priority
	}
	t.AutoContinue = true
	if aux.AutoContinue != nil {
		t.AutoContinue = *aux.AutoContinue
	}
	t.MaxSessions = DefaultMaxSessions
	if aux.MaxSessions != nil {
		t.MaxSessions = *aux.MaxSessions
	}
	if t.SourceData == nil {
		t.SourceData = map[string]any{}
	}
	return nil
}
