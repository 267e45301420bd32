package lifecycle

import (
	"time"
)

// Transition validates and applies a status change, returning the updated
// workflow snapshot. It never touches storage; the caller persists the
// result together with whatever side effects the new status implies.
func Transition(w Workflow, to Status, actorID int64, remarks string, now time.Time) (Workflow, error) {
	if _, ok := transitions[w.DocType]; !ok {
		return w, ErrUnknownDocType
	}
	if !allows(w.DocType, w.Status, to) {
		return w, &IllegalTransitionError{DocType: w.DocType, From: w.Status, To: to}
	}
	if isGated(w.DocType, to) && w.ApprovalStatus == ApprovalPending {
		return w, ErrApprovalRequired
	}

	switch to {
	case StatusApproved:
		w.ApprovalStatus = ApprovalApproved
		w.ApprovedBy = &actorID
		at := now
		w.ApprovedAt = &at
		w.ApprovalRemarks = remarks
	case StatusRejected:
		w.ApprovalStatus = ApprovalRejected
		w.ApprovedBy = &actorID
		at := now
		w.ApprovedAt = &at
		w.ApprovalRemarks = remarks
	}

	w.Status = to
	return w, nil
}
