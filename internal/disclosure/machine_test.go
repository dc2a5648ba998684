package disclosure

import (
	"testing"
	"time"

	"github.com/mwhitfield/foliochat/internal/classify"
	"github.com/mwhitfield/foliochat/internal/session"
)

func newSession(role session.Role, mode session.Mode) *session.Session {
	s := session.New("s1", role, time.Now())
	s.Mode = mode
	return s
}

func resumeRequest() classify.Result {
	return classify.Result{Category: classify.CategoryResumeRequest, Confidence: classify.ConfidenceHigh}
}

func ordinary() classify.Result {
	return classify.Result{Category: classify.CategoryTechnical, Confidence: classify.ConfidenceHigh}
}

func TestExplicitRequestFromEducation(t *testing.T) {
	s := newSession(session.RoleDeveloper, session.ModeEducation)
	d := Evaluate(s, resumeRequest(), nil, "send me your resume")
	if d.Outcome != OutcomePromptEmail {
		t.Errorf("Outcome = %s, want prompt_email", d.Outcome)
	}
	if d.Next != session.ModeAwaitingEmail {
		t.Errorf("Next = %s, want awaiting_email", d.Next)
	}
}

func TestExplicitRequestFromSignalMentioned(t *testing.T) {
	s := newSession(session.RoleHiringManagerTechnical, session.ModeSignalMentioned)
	d := Evaluate(s, resumeRequest(), nil, "yes please send it")
	if d.Outcome != OutcomePromptEmail {
		t.Errorf("Outcome = %s, want prompt_email", d.Outcome)
	}
}

func TestOrdinaryTurnStaysPut(t *testing.T) {
	s := newSession(session.RoleDeveloper, session.ModeEducation)
	d := Evaluate(s, ordinary(), nil, "how does it scale?")
	if d.Outcome != OutcomeAnswer || d.Next != session.ModeEducation {
		t.Errorf("got %s/%s, want answer/education", d.Outcome, d.Next)
	}
}

func TestMentionFiresAtThreshold(t *testing.T) {
	s := newSession(session.RoleHiringManagerTechnical, session.ModeEducation)
	s.AddSignals([]session.SignalKind{session.SignalMentionedHiring}, 0)

	// One accumulated kind + one new kind crosses the threshold.
	d := Evaluate(s, ordinary(), []session.SignalKind{session.SignalDescribedRole}, "we need a senior engineer")
	if d.Outcome != OutcomeMention {
		t.Fatalf("Outcome = %s, want mention", d.Outcome)
	}
	if !d.SetMention {
		t.Error("SetMention = false")
	}
	if d.Next != session.ModeSignalMentioned {
		t.Errorf("Next = %s", d.Next)
	}
}

func TestMentionRequiresDistinctKinds(t *testing.T) {
	s := newSession(session.RoleHiringManagerTechnical, session.ModeEducation)
	s.AddSignals([]session.SignalKind{session.SignalMentionedHiring}, 0)

	// The same kind again does not add a distinct signal.
	d := Evaluate(s, ordinary(), []session.SignalKind{session.SignalMentionedHiring}, "still hiring")
	if d.Outcome != OutcomeAnswer {
		t.Errorf("Outcome = %s, want answer below threshold", d.Outcome)
	}
}

func TestMentionBlockedConditions(t *testing.T) {
	kinds := []session.SignalKind{session.SignalMentionedHiring, session.SignalDescribedRole}

	t.Run("non-hiring persona", func(t *testing.T) {
		s := newSession(session.RoleDeveloper, session.ModeEducation)
		if d := Evaluate(s, ordinary(), kinds, "q"); d.Outcome != OutcomeAnswer {
			t.Errorf("Outcome = %s", d.Outcome)
		}
	})

	t.Run("mention already given", func(t *testing.T) {
		s := newSession(session.RoleHiringManagerTechnical, session.ModeEducation)
		s.MentionGiven = true
		if d := Evaluate(s, ordinary(), kinds, "q"); d.Outcome != OutcomeAnswer {
			t.Errorf("Outcome = %s", d.Outcome)
		}
	})

	t.Run("resume already sent", func(t *testing.T) {
		s := newSession(session.RoleHiringManagerTechnical, session.ModeEducation)
		s.ResumeSent = true
		if d := Evaluate(s, ordinary(), kinds, "q"); d.Outcome != OutcomeAnswer {
			t.Errorf("Outcome = %s", d.Outcome)
		}
	})
}

func TestExplicitRequestBeatsMention(t *testing.T) {
	s := newSession(session.RoleHiringManagerTechnical, session.ModeEducation)
	s.AddSignals([]session.SignalKind{session.SignalMentionedHiring}, 0)

	d := Evaluate(s, resumeRequest(), []session.SignalKind{session.SignalDescribedRole}, "senior engineer — send your resume")
	if d.Outcome != OutcomePromptEmail {
		t.Errorf("Outcome = %s, want prompt_email (explicit wins the tie)", d.Outcome)
	}
}

func TestAwaitingEmailValid(t *testing.T) {
	s := newSession(session.RoleDeveloper, session.ModeAwaitingEmail)
	d := Evaluate(s, ordinary(), nil, "it's jordan@acme.com")
	if d.Outcome != OutcomePromptName {
		t.Fatalf("Outcome = %s, want prompt_name", d.Outcome)
	}
	if d.Email != "jordan@acme.com" {
		t.Errorf("Email = %q", d.Email)
	}
	if d.Next != session.ModeAwaitingName {
		t.Errorf("Next = %s", d.Next)
	}
}

func TestAwaitingEmailInvalidSelfLoops(t *testing.T) {
	s := newSession(session.RoleDeveloper, session.ModeAwaitingEmail)
	d := Evaluate(s, ordinary(), nil, "jordan at acme dot com")
	if d.Outcome != OutcomeEmailInvalid {
		t.Fatalf("Outcome = %s, want email_invalid", d.Outcome)
	}
	if d.Next != session.ModeAwaitingEmail {
		t.Errorf("Next = %s, want awaiting_email", d.Next)
	}
	if d.EmailErr == nil {
		t.Error("EmailErr = nil")
	}
}

func TestAwaitingNameDelivers(t *testing.T) {
	s := newSession(session.RoleDeveloper, session.ModeAwaitingName)
	d := Evaluate(s, ordinary(), nil, "Jordan Lee")
	if d.Outcome != OutcomeDeliver {
		t.Fatalf("Outcome = %s, want deliver", d.Outcome)
	}
	if d.Name != "Jordan Lee" {
		t.Errorf("Name = %q", d.Name)
	}
	if d.Next != session.ModeSent {
		t.Errorf("Next = %s", d.Next)
	}
}

func TestAwaitingNameDeclineDeliversAnonymously(t *testing.T) {
	s := newSession(session.RoleDeveloper, session.ModeAwaitingName)
	d := Evaluate(s, ordinary(), nil, "skip the name please")
	if d.Outcome != OutcomeDeliver {
		t.Fatalf("Outcome = %s, want deliver", d.Outcome)
	}
	if d.Name != "" {
		t.Errorf("Name = %q, want empty", d.Name)
	}
}

func TestAwaitingNameExplicitRequestReprompts(t *testing.T) {
	s := newSession(session.RoleDeveloper, session.ModeAwaitingName)
	d := Evaluate(s, resumeRequest(), nil, "so are you sending the resume?")
	if d.Outcome != OutcomeRepromptName {
		t.Fatalf("Outcome = %s, want reprompt_name", d.Outcome)
	}
	if d.Next != session.ModeAwaitingName {
		t.Errorf("Next = %s", d.Next)
	}
}

func TestSentDuplicateRequest(t *testing.T) {
	s := newSession(session.RoleDeveloper, session.ModeSent)
	s.ResumeSent = true
	d := Evaluate(s, resumeRequest(), nil, "send it again")
	if d.Outcome != OutcomeDuplicate {
		t.Fatalf("Outcome = %s, want duplicate", d.Outcome)
	}
	if d.Next != session.ModeSent {
		t.Errorf("Next = %s, want sent (duplicate_blocked is transient)", d.Next)
	}
}

func TestSentOrdinaryTurnAnswers(t *testing.T) {
	s := newSession(session.RoleDeveloper, session.ModeSent)
	s.ResumeSent = true
	d := Evaluate(s, ordinary(), nil, "what about your stack?")
	if d.Outcome != OutcomeAnswer || d.Next != session.ModeSent {
		t.Errorf("got %s/%s", d.Outcome, d.Next)
	}
}

func TestDuplicateBlockedBehavesLikeSent(t *testing.T) {
	s := newSession(session.RoleDeveloper, session.ModeDuplicateBlocked)
	s.ResumeSent = true
	d := Evaluate(s, resumeRequest(), nil, "resume please")
	if d.Outcome != OutcomeDuplicate || d.Next != session.ModeSent {
		t.Errorf("got %s/%s", d.Outcome, d.Next)
	}
}

func TestRequestAfterSentViaEducationModeGuard(t *testing.T) {
	// A corrupted record claiming education mode with resume_sent set must
	// not re-open the email flow.
	s := newSession(session.RoleDeveloper, session.ModeEducation)
	s.ResumeSent = true
	d := Evaluate(s, resumeRequest(), nil, "resume please")
	if d.Outcome == OutcomePromptEmail {
		t.Error("re-opened disclosure flow despite resume_sent")
	}
}

func TestUnknownModeFallsBackToEducation(t *testing.T) {
	s := newSession(session.RoleDeveloper, session.Mode("garbage"))
	d := Evaluate(s, ordinary(), nil, "q")
	if d.Outcome != OutcomeAnswer || d.Next != session.ModeEducation {
		t.Errorf("got %s/%s, want answer/education", d.Outcome, d.Next)
	}
}
