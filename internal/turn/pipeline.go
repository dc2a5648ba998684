// Package turn is the per-request pipeline: classify the query, accumulate
// hiring signals, step the disclosure machine, run any delivery actions, and
// persist the session as a single atomic write.
package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwhitfield/foliochat/internal/actions"
	"github.com/mwhitfield/foliochat/internal/classify"
	"github.com/mwhitfield/foliochat/internal/contact"
	"github.com/mwhitfield/foliochat/internal/disclosure"
	"github.com/mwhitfield/foliochat/internal/jobdetails"
	"github.com/mwhitfield/foliochat/internal/session"
	"github.com/mwhitfield/foliochat/internal/signals"
	"github.com/mwhitfield/foliochat/internal/storage"
)

// ErrUnknownRole is returned for a new session with an unrecognized persona.
var ErrUnknownRole = errors.New("unknown visitor role")

// SessionStore persists sessions and the turn log. Implemented by
// storage.Store.
type SessionStore interface {
	GetSession(id string) (storage.SessionRow, error)
	PutSession(row storage.SessionRow) error
	SaveTurn(t storage.Turn) error
}

// DetailRecorder patches harvested job details onto the distribution record.
// Implemented by storage.Store.
type DetailRecorder interface {
	PatchDistributionDetails(sessionID, company, position, timeline string) error
}

// Generator produces the conversational answer for education-style turns.
// Implemented by compose.Generator.
type Generator interface {
	Generate(ctx context.Context, role session.Role, history []session.Message, query string) (string, error)
}

// ActionRunner executes a delivery action plan. Implemented by
// actions.Executor.
type ActionRunner interface {
	Execute(ctx context.Context, reqs []actions.Request) ([]actions.Result, error)
}

// Request is one visitor turn.
type Request struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role,omitempty"`
	Query     string `json:"query"`
}

// Response is the assistant's reply plus the observable turn outcome.
// ActionsTaken lists the kinds that actually executed this turn, so a caller
// can observe deliveries without reading the session state.
type Response struct {
	SessionID    string   `json:"session_id"`
	Answer       string   `json:"answer"`
	Mode         string   `json:"mode"`
	Category     string   `json:"category"`
	ActionsTaken []string `json:"actions_taken,omitempty"`
}

// Pipeline wires the per-turn collaborators. Turns within one session are
// serialized; a later turn never starts before the earlier one's state write
// commits. Independent sessions proceed concurrently.
type Pipeline struct {
	store   SessionStore
	details DetailRecorder
	gen     Generator
	runner  ActionRunner
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPipeline creates a Pipeline. logger may be nil (default slog logger);
// now may be nil (time.Now).
func NewPipeline(store SessionStore, details DetailRecorder, gen Generator, runner ActionRunner, logger *slog.Logger, now func() time.Time) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		store:   store,
		details: details,
		gen:     gen,
		runner:  runner,
		logger:  logger,
		now:     now,
		locks:   make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the mutex serializing turns for one session.
func (p *Pipeline) sessionLock(id string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[id]
	if !ok {
		l = &sync.Mutex{}
		p.locks[id] = l
	}
	return l
}

// Process runs one visitor turn end to end. The loaded session is cloned and
// mutated; the clone is persisted only once the turn's outcome is known, so
// a failed delivery leaves no partial state behind.
func (p *Pipeline) Process(ctx context.Context, req Request) (Response, error) {
	started := p.now()

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	lock := p.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := p.loadOrCreate(id, req.Role)
	if err != nil {
		return Response{}, err
	}
	modeBefore := sess.Mode

	cls := classify.Classify(req.Query, sess.Role)
	newKinds := signals.Detect(req.Query)
	dec := disclosure.Evaluate(sess, cls, newKinds, req.Query)

	work := sess.Clone()
	work.AddSignals(newKinds, work.TurnCount)

	answer, reportedMode, results := p.applyDecision(ctx, work, dec, req.Query)

	work.TurnCount++
	work.Append(session.SpeakerVisitor, req.Query)
	work.Append(session.SpeakerAssistant, answer)
	work.UpdatedAt = p.now().UTC()

	if err := p.persist(work); err != nil {
		return Response{}, fmt.Errorf("saving session: %w", err)
	}

	p.logTurn(work, req.Query, cls, newKinds, modeBefore, results, started)

	var taken []string
	for _, r := range results {
		if r.Status == actions.StatusExecuted {
			taken = append(taken, string(r.Kind))
		}
	}

	return Response{
		SessionID:    work.ID,
		Answer:       answer,
		Mode:         string(reportedMode),
		Category:     string(cls.Category),
		ActionsTaken: taken,
	}, nil
}

// applyDecision turns the machine's verdict into an answer and the mode the
// session actually ends the turn in. The reported mode can differ from the
// persisted one: a blocked duplicate reports duplicate_blocked for this turn
// only while the session stays sent.
func (p *Pipeline) applyDecision(ctx context.Context, work *session.Session, dec disclosure.Decision, query string) (string, session.Mode, []actions.Result) {
	switch dec.Outcome {
	case disclosure.OutcomeAnswer:
		answer := p.generate(ctx, work, query)
		if work.ResumeSent {
			answer = p.harvestJobDetails(work, query, answer)
		}
		work.Mode = dec.Next
		return answer, work.Mode, nil

	case disclosure.OutcomeMention:
		answer, err := p.gen.Generate(ctx, work.Role, work.History, query)
		if err != nil {
			// The mention rides on a real answer. Without one, keep the
			// mention unconsumed for a later turn.
			p.logger.Warn("generation failed, deferring availability mention", "session_id", work.ID, "error", err)
			return msgFallbackAnswer, work.Mode, nil
		}
		work.MentionGiven = true
		work.Mode = dec.Next
		return answer + "\n\n" + msgAvailabilityMention, work.Mode, nil

	case disclosure.OutcomePromptEmail:
		work.Mode = dec.Next
		return msgEmailPrompt, work.Mode, nil

	case disclosure.OutcomeEmailInvalid:
		work.Mode = dec.Next
		return msgEmailInvalid(reasonOf(dec.EmailErr)), work.Mode, nil

	case disclosure.OutcomePromptName:
		work.Contact.Email = dec.Email
		work.Mode = dec.Next
		return msgNamePrompt, work.Mode, nil

	case disclosure.OutcomeRepromptName:
		work.Mode = dec.Next
		return msgRepromptName, work.Mode, nil

	case disclosure.OutcomeDeliver:
		work.Contact.Name = dec.Name
		plan := actions.Plan(work.ID, work.Contact.Email, work.Contact.Name)
		results, err := p.runner.Execute(ctx, plan)
		if err != nil {
			// Critical delivery failed: stay in awaiting_name so the next
			// message retries with the captured contact details.
			p.logger.Error("resume delivery failed", "session_id", work.ID, "error", err)
			work.Mode = session.ModeAwaitingName
			return msgDeliveryFailed, work.Mode, results
		}
		work.MarkSent()
		return msgSent(work.Contact.Email), work.Mode, results

	case disclosure.OutcomeDuplicate:
		// Persist sent; duplicate_blocked is a transient, per-turn report.
		work.Mode = dec.Next
		return msgDuplicate(work.Contact.Email), session.ModeDuplicateBlocked, nil
	}

	work.Mode = dec.Next
	return p.generate(ctx, work, query), work.Mode, nil
}

// generate answers the current query, degrading to a canned fallback when
// the engine is unavailable.
func (p *Pipeline) generate(ctx context.Context, work *session.Session, query string) string {
	answer, err := p.gen.Generate(ctx, work.Role, work.History, query)
	if err != nil {
		p.logger.Warn("generation failed", "session_id", work.ID, "error", err)
		return msgFallbackAnswer
	}
	return answer
}

// reasonOf extracts the human-readable rejection reason from a contact
// validation error.
func reasonOf(err error) string {
	var verr *contact.ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return "no address found"
}

// harvestJobDetails runs post-delivery extraction on the current query and
// appends at most one follow-up question over the whole session.
func (p *Pipeline) harvestJobDetails(work *session.Session, query, answer string) string {
	patch := jobdetails.Extract(query, work.Job)
	captured := !patch.Empty()
	work.Job.Merge(patch)

	if captured && p.details != nil {
		if err := p.details.PatchDistributionDetails(work.ID, work.Job.Company, work.Job.Position, work.Job.Timeline); err != nil {
			p.logger.Warn("recording job details failed", "session_id", work.ID, "error", err)
		}
	}

	if captured && !work.Job.Complete() && work.JobDetailAsks < 1 {
		if followup := missingDetailFollowup(work.Job); followup != "" {
			work.JobDetailAsks++
			return answer + "\n\n" + followup
		}
	}
	return answer
}

func (p *Pipeline) loadOrCreate(id, reqRole string) (*session.Session, error) {
	row, err := p.store.GetSession(id)
	if errors.Is(err, storage.ErrNotFound) {
		role := session.Role(reqRole)
		if !role.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRole, reqRole)
		}
		return session.New(id, role, p.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal([]byte(row.StateJSON), &sess); err != nil {
		return nil, fmt.Errorf("decoding session state: %w", err)
	}
	return &sess, nil
}

func (p *Pipeline) persist(work *session.Session) error {
	state, err := json.Marshal(work)
	if err != nil {
		return fmt.Errorf("encoding session state: %w", err)
	}
	return p.store.PutSession(storage.SessionRow{
		ID:        work.ID,
		Role:      string(work.Role),
		StateJSON: string(state),
		UpdatedAt: work.UpdatedAt,
	})
}

// logTurn appends the turn log row. Best-effort: analytics must never fail
// a visitor's turn.
func (p *Pipeline) logTurn(work *session.Session, query string, cls classify.Result, kinds []session.SignalKind, modeBefore session.Mode, results []actions.Result, started time.Time) {
	signalsJSON, _ := json.Marshal(kinds)
	executed := make([]string, 0, len(results))
	for _, r := range results {
		executed = append(executed, string(r.Kind)+":"+string(r.Status))
	}
	actionsJSON, _ := json.Marshal(executed)

	t := storage.Turn{
		ID:          uuid.NewString(),
		SessionID:   work.ID,
		TurnIndex:   work.TurnCount - 1,
		Query:       query,
		Category:    string(cls.Category),
		SignalsJSON: string(signalsJSON),
		ModeBefore:  string(modeBefore),
		ModeAfter:   string(work.Mode),
		ActionsJSON: string(actionsJSON),
		DurationMs:  p.now().Sub(started).Milliseconds(),
		CreatedAt:   p.now().UTC(),
	}
	if err := p.store.SaveTurn(t); err != nil {
		p.logger.Warn("saving turn log failed", "session_id", work.ID, "error", err)
	}
}
