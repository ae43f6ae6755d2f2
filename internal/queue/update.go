package queue

import (
	"time"

	"github.com/fyrsmithlabs/taskd/internal/ledger"
)

// applyUpdate merges set fields into the task and bumps updated_at.
func applyUpdate(t *ledger.Task, upd Update) {
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.AssignedWorker != nil {
		t.AssignedWorker = *upd.AssignedWorker
	}
	if upd.WorkerOutput != nil {
		t.WorkerOutput = upd.WorkerOutput
	}
	if upd.ValidationStatus != nil {
		t.ValidationStatus = *upd.ValidationStatus
	}
	if upd.Confidence != nil {
		t.Confidence = *upd.Confidence
	}
	if upd.Error != nil {
		t.Error = *upd.Error
	}
	touch(t)
}

// touch advances updated_at; every mutation goes through here.
func touch(t *ledger.Task) {
	t.UpdatedAt = time.Now().UTC()
}
