package actions

import (
	"context"
	"fmt"
	"log/slog"
)

// ResumeAsset is the verified resume artifact ready for delivery.
type ResumeAsset struct {
	Path  string
	Pages int
}

// AssetFetcher loads and verifies the resume artifact.
type AssetFetcher interface {
	Fetch(ctx context.Context) (ResumeAsset, error)
}

// EmailSender delivers the resume. Implemented by delivery.EmailClient.
type EmailSender interface {
	Send(ctx context.Context, to, name, attachmentPath string) (deliveryID string, err error)
}

// SMSSender notifies the owner. Implemented by delivery.SMSClient.
type SMSSender interface {
	Send(ctx context.Context, body string) error
}

// Ledger tracks executed idempotency keys. A key is recorded only after
// the action confirmably succeeded; checking and recording are separate
// because turns within a session never overlap (single writer), so
// check-then-act is safe and a failed delivery leaves the key unclaimed
// for a retry.
type Ledger interface {
	AlreadyExecuted(key string) (bool, error)
	MarkExecuted(key, sessionID, kind, deliveryID string) error
}

// EventRecorder persists the distribution event for the analytics
// collaborator. Failures are logged, never surfaced to the visitor.
type EventRecorder interface {
	RecordDistribution(sessionID, email, name, deliveryID string) error
}

// Executor runs planned actions in order with critical/non-critical
// semantics: only the email delivery gates success, SMS and logging are
// best-effort.
type Executor struct {
	assets AssetFetcher
	email  EmailSender
	sms    SMSSender
	ledger Ledger
	events EventRecorder
	logger *slog.Logger
}

// NewExecutor wires an Executor. logger may be nil, in which case the
// default slog logger is used.
func NewExecutor(assets AssetFetcher, email EmailSender, sms SMSSender, ledger Ledger, events EventRecorder, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		assets: assets,
		email:  email,
		sms:    sms,
		ledger: ledger,
		events: events,
		logger: logger,
	}
}

// Execute runs the requests in order. It returns ErrCriticalFailed when the
// deliver_resume step fails, in which case the caller must leave the
// session un-sent. A deliver_resume suppressed by the ledger counts as
// success: the resume already went out on a previous attempt of this turn.
func (e *Executor) Execute(ctx context.Context, reqs []Request) ([]Result, error) {
	results := make([]Result, 0, len(reqs))
	var asset ResumeAsset
	var deliveryID string
	criticalOK := false

	for _, req := range reqs {
		res := Result{Request: req, Status: StatusPending}

		switch req.Kind {
		case KindFetchResume:
			a, err := e.assets.Fetch(ctx)
			if err != nil {
				res.Status = StatusFailed
				res.Err = err.Error()
				results = append(results, res)
				// Without the asset the critical step cannot run.
				return results, fmt.Errorf("fetching resume asset: %w", ErrCriticalFailed)
			}
			asset = a
			res.Status = StatusExecuted

		case KindDeliverResume:
			done, err := e.ledger.AlreadyExecuted(req.IdempotencyKey)
			if err != nil {
				res.Status = StatusFailed
				res.Err = err.Error()
				results = append(results, res)
				return results, fmt.Errorf("checking idempotency key: %w", ErrCriticalFailed)
			}
			if done {
				e.logger.Info("duplicate delivery suppressed",
					"session_id", req.SessionID, "key", req.IdempotencyKey)
				res.Status = StatusSkipped
				criticalOK = true
				break
			}
			id, err := e.email.Send(ctx, req.Email, req.Name, asset.Path)
			if err != nil {
				res.Status = StatusFailed
				res.Err = err.Error()
				results = append(results, res)
				return results, fmt.Errorf("delivering resume: %w", ErrCriticalFailed)
			}
			if err := e.ledger.MarkExecuted(req.IdempotencyKey, req.SessionID, string(req.Kind), id); err != nil {
				// The email is out; the ledger write is not worth failing
				// the turn over, but it must be visible in the logs.
				e.logger.Error("recording idempotency key failed",
					"session_id", req.SessionID, "key", req.IdempotencyKey, "error", err)
			}
			deliveryID = id
			res.DeliveryID = id
			res.Status = StatusExecuted
			criticalOK = true

		case KindNotifySMS:
			body := fmt.Sprintf("Resume sent to %s (%s)", req.Email, displayName(req.Name))
			if err := e.sms.Send(ctx, body); err != nil {
				e.logger.Warn("sms notification failed", "session_id", req.SessionID, "error", err)
				res.Status = StatusFailed
				res.Err = err.Error()
				break
			}
			res.Status = StatusExecuted

		case KindLogDistribution:
			if err := e.events.RecordDistribution(req.SessionID, req.Email, req.Name, deliveryID); err != nil {
				e.logger.Warn("distribution log failed", "session_id", req.SessionID, "error", err)
				res.Status = StatusFailed
				res.Err = err.Error()
				break
			}
			res.Status = StatusExecuted
		}

		results = append(results, res)
	}

	if !criticalOK {
		return results, ErrCriticalFailed
	}
	return results, nil
}

func displayName(name string) string {
	if name == "" {
		return "name not given"
	}
	return name
}
