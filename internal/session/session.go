package session

import (
	"time"
)

// Role is the visitor persona declared (or inferred by the host UI) at the
// start of a conversation.
type Role string

const (
	RoleHiringManagerTechnical    Role = "hiring-manager-technical"
	RoleHiringManagerNonTechnical Role = "hiring-manager-nontechnical"
	RoleDeveloper                 Role = "developer"
	RoleExplorer                  Role = "explorer"
)

// hiringPersonas maps roles to eligibility for the signal-aware availability
// mention. Kept as a table so eligibility is defined in exactly one place.
var hiringPersonas = map[Role]bool{
	RoleHiringManagerTechnical:    true,
	RoleHiringManagerNonTechnical: true,
	RoleDeveloper:                 false,
	RoleExplorer:                  false,
}

// HiringPersona reports whether the role is eligible for the proactive
// availability mention.
func (r Role) HiringPersona() bool {
	return hiringPersonas[r]
}

// Valid reports whether r is one of the known persona tags.
func (r Role) Valid() bool {
	_, ok := hiringPersonas[r]
	return ok
}

// Mode is the current disclosure stance of the assistant.
type Mode string

const (
	ModeEducation        Mode = "education"
	ModeSignalMentioned  Mode = "signal_mentioned"
	ModeAwaitingEmail    Mode = "awaiting_email"
	ModeAwaitingName     Mode = "awaiting_name"
	ModeSent             Mode = "sent"
	ModeDuplicateBlocked Mode = "duplicate_blocked"
)

// SignalKind identifies a recruiting-intent cue found in a visitor turn.
type SignalKind string

const (
	SignalMentionedHiring SignalKind = "mentioned_hiring"
	SignalDescribedRole   SignalKind = "described_role"
	SignalTeamContext     SignalKind = "team_or_company_context"
)

// Transcript speakers.
const (
	SpeakerVisitor   = "visitor"
	SpeakerAssistant = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Contact holds progressively collected contact details.
type Contact struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// JobDetails is a partial record of the opening the visitor described.
// Fields are filled additively; a set field is never overwritten.
type JobDetails struct {
	Company  string `json:"company,omitempty"`
	Position string `json:"position,omitempty"`
	Timeline string `json:"timeline,omitempty"`
}

// Merge fills empty fields of d from patch, first value wins.
func (d *JobDetails) Merge(patch JobDetails) {
	if d.Company == "" {
		d.Company = patch.Company
	}
	if d.Position == "" {
		d.Position = patch.Position
	}
	if d.Timeline == "" {
		d.Timeline = patch.Timeline
	}
}

// Complete reports whether all three fields are set.
func (d JobDetails) Complete() bool {
	return d.Company != "" && d.Position != "" && d.Timeline != ""
}

// Empty reports whether no field is set.
func (d JobDetails) Empty() bool {
	return d == JobDetails{}
}

// maxHistory bounds the transcript window kept on the session record.
// Older entries live only in the turn log.
const maxHistory = 20

// Session is the per-conversation record mutated once per turn by a single
// worker. It is loaded at the start of a turn and persisted as a whole at the
// end, so a partially applied turn is never observable.
type Session struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	TurnCount int       `json:"turn_count"`
	History   []Message `json:"history,omitempty"`

	// Signals maps each detected signal kind to the turn index on which it
	// was first seen. The set only grows.
	Signals map[SignalKind]int `json:"signals,omitempty"`

	MentionGiven bool `json:"mention_given"`
	Mode         Mode `json:"mode"`
	ResumeSent   bool `json:"resume_sent"`

	Contact Contact    `json:"contact"`
	Job     JobDetails `json:"job_details"`

	// JobDetailAsks counts follow-up questions asked for missing job
	// details; capped at one so the visitor is never interrogated.
	JobDetailAsks int `json:"job_detail_asks,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a fresh session in education mode.
func New(id string, role Role, now time.Time) *Session {
	return &Session{
		ID:        id,
		Role:      role,
		Mode:      ModeEducation,
		Signals:   make(map[SignalKind]int),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// AddSignals records signal kinds found on the given turn. Kinds already
// present keep their original turn index.
func (s *Session) AddSignals(kinds []SignalKind, turn int) {
	if len(kinds) == 0 {
		return
	}
	if s.Signals == nil {
		s.Signals = make(map[SignalKind]int)
	}
	for _, k := range kinds {
		if _, seen := s.Signals[k]; !seen {
			s.Signals[k] = turn
		}
	}
}

// DistinctSignals returns the number of distinct signal kinds accumulated.
func (s *Session) DistinctSignals() int {
	return len(s.Signals)
}

// Append adds a transcript entry, trimming the window to the most recent
// maxHistory entries.
func (s *Session) Append(speaker, text string) {
	s.History = append(s.History, Message{Speaker: speaker, Text: text})
	if len(s.History) > maxHistory {
		s.History = s.History[len(s.History)-maxHistory:]
	}
}

// MarkSent records a confirmed resume delivery. It is the only way
// ResumeSent becomes true, and it never reverses.
func (s *Session) MarkSent() {
	s.ResumeSent = true
	s.Mode = ModeSent
}

// Clone returns a deep copy. The turn pipeline mutates a clone and persists
// it only when the whole turn succeeds.
func (s *Session) Clone() *Session {
	cp := *s
	if s.History != nil {
		cp.History = make([]Message, len(s.History))
		copy(cp.History, s.History)
	}
	if s.Signals != nil {
		cp.Signals = make(map[SignalKind]int, len(s.Signals))
		for k, v := range s.Signals {
			cp.Signals[k] = v
		}
	}
	return &cp
}
