package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SessionRow is the persisted form of a conversation session. The full
// state is a JSON document so the end-of-turn save is a single row write:
// either the whole patch lands or none of it does.
type SessionRow struct {
	ID        string
	Role      string
	StateJSON string
	UpdatedAt time.Time
}

// Turn is one processed turn, recorded for the analytics collaborator.
type Turn struct {
	ID          string
	SessionID   string
	TurnIndex   int
	Query       string
	Category    string
	SignalsJSON string // JSON array of signal kinds found this turn
	ModeBefore  string
	ModeAfter   string
	ActionsJSON string // JSON array of executed action kinds
	DurationMs  int64
	CreatedAt   time.Time
}

// ActionExecution is one row in the idempotency ledger.
type ActionExecution struct {
	IdempotencyKey string
	SessionID      string
	Kind           string
	DeliveryID     string
	ExecutedAt     time.Time
}

// Distribution records a completed resume delivery, including the job
// details harvested afterwards.
type Distribution struct {
	ID         string
	SessionID  string
	Email      string
	Name       string
	DeliveryID string
	Company    string
	Position   string
	Timeline   string
	CreatedAt  time.Time
}

// KnowledgeDoc is a piece of the owner's background indexed for retrieval.
type KnowledgeDoc struct {
	ID        string
	Title     string
	Content   string
	Source    string
	Tags      string // JSON array stored as text
	CreatedAt time.Time
	VectorID  string
}

// Job is a queued background task (knowledge embedding).
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
