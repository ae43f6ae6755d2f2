package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taskd/internal/ledger"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	store, err := ledger.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	q, err := New(store, nil, nil)
	require.NoError(t, err)
	return q
}

func TestCreateAndGet(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task, err := q.Create(ctx, "research", map[string]any{"topic": "caching"}, 6)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, task.Status)
	assert.Equal(t, 6, task.Priority)

	got, err := q.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)

	_, err = q.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestPendingOrdering(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	// Created order with priorities 9, 5, 9, 1. Expected dispatch order:
	// first 9 (earlier created), second 9, then 5, then 1.
	t1, err := q.Create(ctx, "custom", nil, 9)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	t2, err := q.Create(ctx, "custom", nil, 5)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	t3, err := q.Create(ctx, "custom", nil, 9)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	t4, err := q.Create(ctx, "custom", nil, 1)
	require.NoError(t, err)

	pending, err := q.Pending(ctx, "")
	require.NoError(t, err)
	require.Len(t, pending, 4)

	want := []string{t1.ID, t3.ID, t2.ID, t4.ID}
	for i, tk := range pending {
		assert.Equal(t, want[i], tk.ID, "position %d", i)
	}

	next, err := q.Next(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, t1.ID, next.ID)
}

func TestPendingFiltersByType(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Create(ctx, "research", nil, 5)
	require.NoError(t, err)
	_, err = q.Create(ctx, "custom", nil, 5)
	require.NoError(t, err)

	pending, err := q.Pending(ctx, "research")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "research", pending[0].Type)
}

func TestNextEmptyQueue(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.Next(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestMarkFailedRetriesThenExhausts(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task, err := q.Create(ctx, "custom", nil, 5)
	require.NoError(t, err)
	require.Equal(t, 3, task.MaxRetries)

	// First three failures re-queue with incremented retry_count.
	for i := 1; i <= 3; i++ {
		updated, outcome, err := q.MarkFailed(ctx, task.ID, "boom")
		require.NoError(t, err)
		assert.Equal(t, OutcomeRequeued, outcome, "failure %d", i)
		assert.Equal(t, ledger.StatusPending, updated.Status)
		assert.Equal(t, i, updated.RetryCount)
	}

	// Fourth failure exhausts the budget.
	updated, outcome, err := q.MarkFailed(ctx, task.ID, "boom")
	require.NoError(t, err)
	assert.Equal(t, OutcomeExhausted, outcome)
	assert.Equal(t, ledger.StatusFailed, updated.Status)
	assert.Equal(t, 3, updated.RetryCount)
	assert.Equal(t, "boom", updated.Error)
}

func TestMarkInProgressAndCompleted(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task, err := q.Create(ctx, "custom", nil, 5)
	require.NoError(t, err)
	created := task.UpdatedAt

	time.Sleep(5 * time.Millisecond)
	updated, err := q.MarkInProgress(ctx, task.ID, "custom_120000_ab12")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusInProgress, updated.Status)
	assert.Equal(t, "custom_120000_ab12", updated.AssignedWorker)
	assert.True(t, updated.UpdatedAt.After(created), "updated_at must bump on mutation")

	done, err := q.MarkCompleted(ctx, task.ID, map[string]any{"output": "draft"}, 0.92, "passed")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, done.Status)
	assert.Equal(t, 0.92, done.Confidence)
	assert.Equal(t, "passed", done.ValidationStatus)
	assert.Equal(t, "draft", done.WorkerOutput["output"])
}

func TestUpdatePartialFields(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task, err := q.Create(ctx, "custom", map[string]any{"k": "v"}, 7)
	require.NoError(t, err)

	status := ledger.StatusCancelled
	updated, err := q.Update(ctx, task.ID, Update{Status: &status})
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusCancelled, updated.Status)
	// Untouched fields survive a partial update.
	assert.Equal(t, 7, updated.Priority)
	assert.Equal(t, "v", updated.SourceData["k"])
}

func TestStatsReflectLedger(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	a, err := q.Create(ctx, "custom", nil, 5)
	require.NoError(t, err)
	_, err = q.Create(ctx, "custom", nil, 5)
	require.NoError(t, err)
	_, err = q.MarkCompleted(ctx, a.ID, nil, 1.0, "passed")
	require.NoError(t, err)

	meta, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.TotalTasks)
	assert.Equal(t, 1, meta.CompletedTasks)
	assert.Equal(t, 0, meta.FailedTasks)
}

func TestFailTerminalBypassesRetryBudget(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task, err := q.Create(ctx, "custom", nil, 5)
	require.NoError(t, err)

	failed, err := q.FailTerminal(ctx, task.ID, "no worker available for task type: custom")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, failed.Status)
	assert.Zero(t, failed.RetryCount)
	assert.Contains(t, failed.Error, "no worker available")
}

func TestCancel(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task, err := q.Create(ctx, "custom", nil, 5)
	require.NoError(t, err)

	cancelled, err := q.Cancel(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCancelled, cancelled.Status)

	// Terminal states reject cancellation.
	_, err = q.Cancel(ctx, task.ID)
	assert.ErrorIs(t, err, ErrTerminal)

	_, err = q.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestSetMaxRetriesAppliesToNewTasks(t *testing.T) {
	q := newTestQueue(t)
	q.SetMaxRetries(1)
	ctx := context.Background()

	task, err := q.Create(ctx, "custom", nil, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, task.MaxRetries)

	_, outcome, err := q.MarkFailed(ctx, task.ID, "boom")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRequeued, outcome)

	_, outcome, err = q.MarkFailed(ctx, task.ID, "boom")
	require.NoError(t, err)
	assert.Equal(t, OutcomeExhausted, outcome)
}

// recordingNotifier captures published events.
type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) Publish(event string, task *ledger.Task) {
	n.events = append(n.events, event)
}

func TestNotificationsEmitted(t *testing.T) {
	store, err := ledger.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	q, err := New(store, notifier, nil)
	require.NoError(t, err)
	ctx := context.Background()

	task, err := q.Create(ctx, "custom", nil, 5)
	require.NoError(t, err)
	_, _, err = q.MarkFailed(ctx, task.ID, "x")
	require.NoError(t, err)

	require.Len(t, notifier.events, 2)
	assert.Equal(t, EventTaskCreated, notifier.events[0])
	assert.Equal(t, EventTaskUpdated, notifier.events[1])
}
