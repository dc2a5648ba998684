// Package actions turns a disclosure decision into an ordered, idempotent
// list of side-effecting calls against the delivery collaborators.
package actions

import (
	"errors"
)

// Kind identifies a side-effecting action.
type Kind string

const (
	KindFetchResume     Kind = "fetch_resume"
	KindDeliverResume   Kind = "deliver_resume"
	KindNotifySMS       Kind = "notify_sms"
	KindLogDistribution Kind = "log_distribution"
)

// Status is the execution state of a single action.
type Status string

const (
	StatusPending  Status = "pending"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
	// StatusSkipped marks an action suppressed by the idempotency ledger:
	// an earlier attempt for the same session already executed it.
	StatusSkipped Status = "skipped"
)

// Request is one planned action.
type Request struct {
	Kind           Kind
	SessionID      string
	IdempotencyKey string

	// Delivery parameters.
	Email string
	Name  string
}

// Result reports what happened to one request.
type Result struct {
	Request
	Status     Status
	DeliveryID string
	Err        string
}

// ErrCriticalFailed is returned by Execute when the critical delivery step
// fails; the caller must not mark the session as sent.
var ErrCriticalFailed = errors.New("critical delivery action failed")

// IdempotencyKey derives the deterministic key for (session, kind). A
// retried turn produces the same key, which is how a resent request is
// recognized and suppressed.
func IdempotencyKey(sessionID string, kind Kind) string {
	return sessionID + ":" + string(kind)
}

// Plan builds the ordered action list for a transition into the sent state:
// fetch the resume asset, deliver it by email (critical), notify the owner
// by SMS (non-critical), and record the distribution event (best-effort).
func Plan(sessionID, email, name string) []Request {
	kinds := []Kind{KindFetchResume, KindDeliverResume, KindNotifySMS, KindLogDistribution}
	reqs := make([]Request, len(kinds))
	for i, k := range kinds {
		reqs[i] = Request{
			Kind:           k,
			SessionID:      sessionID,
			IdempotencyKey: IdempotencyKey(sessionID, k),
			Email:          email,
			Name:           name,
		}
	}
	return reqs
}
