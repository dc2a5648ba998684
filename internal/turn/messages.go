package turn

import (
	"fmt"
	"strings"

	"github.com/mwhitfield/foliochat/internal/session"
)

// Canned dialogue for the disclosure sub-flow. Kept in one place so the
// wording is reviewable without reading the pipeline.

const (
	msgAvailabilityMention = "By the way — since it sounds like you're hiring, I'm happy to share a current resume if that's useful."

	msgEmailPrompt = "Happy to send the resume over. What email address should it go to?"

	msgNamePrompt = "Got it. And who should the email be addressed to? (Feel free to skip this.)"

	msgRepromptName = "The resume is queued up — I just need a name to address it to, or say \"skip\" and I'll send it as is."

	msgDeliveryFailed = "Something went wrong sending the email just now. Your address is saved — say the word and I'll try again."

	msgFallbackAnswer = "I'm having trouble putting together a proper answer right now. Mind asking that again in a moment?"

	msgJobDetailFollowup = "Out of interest, what role and team is this for, and what's your timeline?"
)

func msgEmailInvalid(reason string) string {
	return fmt.Sprintf("That doesn't look like a valid email address (%s). Could you double-check it?", reason)
}

func msgSent(email string) string {
	return fmt.Sprintf("Done — the resume is on its way to %s. If you'd like, tell me a bit about the role you're hiring for.", email)
}

func msgDuplicate(email string) string {
	target := "the address you gave earlier"
	if email != "" {
		target = email
	}
	return fmt.Sprintf("I already sent the resume to %s in this conversation. Check your spam folder if it hasn't arrived — happy to keep answering questions in the meantime.", target)
}

// missingDetailFollowup phrases the follow-up around what is still unknown.
func missingDetailFollowup(d session.JobDetails) string {
	var missing []string
	if d.Company == "" {
		missing = append(missing, "which company this is for")
	}
	if d.Position == "" {
		missing = append(missing, "what the role is")
	}
	if d.Timeline == "" {
		missing = append(missing, "your timeline")
	}
	if len(missing) == 0 {
		return ""
	}
	return "Out of interest, could you share " + joinNatural(missing) + "?"
}

func joinNatural(items []string) string {
	switch len(items) {
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}
