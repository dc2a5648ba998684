// Package disclosure decides, turn by turn, whether and how to surface the
// owner's resume to a visitor. It is a state machine over the session's
// disclosure mode; all side effects are described in the returned Decision
// and executed by the turn pipeline, so the machine itself stays pure.
package disclosure

import (
	"github.com/mwhitfield/foliochat/internal/classify"
	"github.com/mwhitfield/foliochat/internal/contact"
	"github.com/mwhitfield/foliochat/internal/session"
)

// signalThreshold is the number of distinct signal kinds required before
// the availability mention triggers.
const signalThreshold = 2

// Outcome names what the machine wants done this turn.
type Outcome string

const (
	// OutcomeAnswer: answer the question normally, no disclosure action.
	OutcomeAnswer Outcome = "answer"
	// OutcomeMention: answer, then append the one-time availability sentence.
	OutcomeMention Outcome = "mention"
	// OutcomePromptEmail: ask for the visitor's email.
	OutcomePromptEmail Outcome = "prompt_email"
	// OutcomeEmailInvalid: reject the email input and re-prompt.
	OutcomeEmailInvalid Outcome = "email_invalid"
	// OutcomePromptName: email captured, ask for the visitor's name.
	OutcomePromptName Outcome = "prompt_name"
	// OutcomeRepromptName: visitor repeated the resume request mid-slot-fill;
	// re-ask for the name without losing the captured email.
	OutcomeRepromptName Outcome = "reprompt_name"
	// OutcomeDeliver: slots filled, run the delivery action plan.
	OutcomeDeliver Outcome = "deliver"
	// OutcomeDuplicate: resume already sent, return the polite notice.
	OutcomeDuplicate Outcome = "duplicate"
)

// Decision is the machine's verdict for one turn. Next is the mode the
// session should persist with, assuming any required critical action
// succeeds; the pipeline overrides it when delivery fails.
type Decision struct {
	Outcome Outcome
	Next    session.Mode

	// Email is set on the AWAITING_EMAIL → AWAITING_NAME transition.
	Email string
	// EmailErr carries the validation failure for OutcomeEmailInvalid.
	EmailErr error
	// Name is set on OutcomeDeliver. Empty means the visitor declined or
	// nothing usable was extracted; the pipeline uses a generic salutation.
	Name string
	// SetMention tells the pipeline to flip the session's mention flag
	// once the sentence is actually delivered.
	SetMention bool
}

// Evaluate runs one step of the disclosure state machine. sess is read but
// never mutated; newKinds are the signal kinds detected on this turn (the
// session set is assumed to already include them by the time the pipeline
// commits).
func Evaluate(sess *session.Session, cls classify.Result, newKinds []session.SignalKind, query string) Decision {
	explicit := cls.Category == classify.CategoryResumeRequest

	switch sess.Mode {
	case session.ModeEducation, session.ModeSignalMentioned:
		// Explicit request always wins over the mention trigger within the
		// same turn: transition straight to the email prompt and skip the
		// redundant availability sentence.
		if explicit && !sess.ResumeSent {
			return Decision{Outcome: OutcomePromptEmail, Next: session.ModeAwaitingEmail}
		}
		if sess.Mode == session.ModeEducation && mentionReady(sess, newKinds) {
			return Decision{
				Outcome:    OutcomeMention,
				Next:       session.ModeSignalMentioned,
				SetMention: true,
			}
		}
		return Decision{Outcome: OutcomeAnswer, Next: sess.Mode}

	case session.ModeAwaitingEmail:
		email, err := contact.ValidateEmail(query)
		if err != nil {
			return Decision{
				Outcome:  OutcomeEmailInvalid,
				Next:     session.ModeAwaitingEmail,
				EmailErr: err,
			}
		}
		return Decision{
			Outcome: OutcomePromptName,
			Next:    session.ModeAwaitingName,
			Email:   email,
		}

	case session.ModeAwaitingName:
		// Visitor confusion: a fresh resume request while we wait for a
		// name re-prompts without discarding the captured email.
		if explicit {
			return Decision{Outcome: OutcomeRepromptName, Next: session.ModeAwaitingName}
		}
		name, _ := contact.ExtractName(query)
		return Decision{
			Outcome: OutcomeDeliver,
			Next:    session.ModeSent,
			Name:    name,
		}

	case session.ModeSent, session.ModeDuplicateBlocked:
		if explicit {
			return Decision{Outcome: OutcomeDuplicate, Next: session.ModeSent}
		}
		return Decision{Outcome: OutcomeAnswer, Next: session.ModeSent}
	}

	// Unknown mode on a corrupted record: treat as education.
	return Decision{Outcome: OutcomeAnswer, Next: session.ModeEducation}
}

// mentionReady reports whether the one-time availability mention should
// fire: hiring persona, mention not yet given, resume not sent, and the
// accumulated plus this turn's signals reach the distinct-kind threshold.
func mentionReady(sess *session.Session, newKinds []session.SignalKind) bool {
	if sess.ResumeSent || sess.MentionGiven || !sess.Role.HiringPersona() {
		return false
	}
	distinct := make(map[session.SignalKind]struct{}, len(sess.Signals)+len(newKinds))
	for k := range sess.Signals {
		distinct[k] = struct{}{}
	}
	for _, k := range newKinds {
		distinct[k] = struct{}{}
	}
	return len(distinct) >= signalThreshold
}
