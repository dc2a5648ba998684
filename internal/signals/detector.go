// Package signals scans a single turn's text for recruiting-intent cues.
//
// Detection is stateless: each call reports only the kinds found in the
// given text. Accumulation across turns lives on the session record, which
// keeps this package trivially testable.
package signals

import (
	"strings"

	"github.com/mwhitfield/foliochat/internal/session"
)

// kindPhrases holds one disjoint phrase set per signal kind.
var kindPhrases = []struct {
	kind    session.SignalKind
	phrases []string
}{
	{session.SignalMentionedHiring, []string{
		"we're hiring", "we are hiring", "i'm hiring", "i am hiring",
		"open position", "open role", "job opening", "vacancy",
		"looking to hire", "recruiting for", "filling a position",
	}},
	{session.SignalDescribedRole, []string{
		"senior engineer", "staff engineer", "principal engineer",
		"backend engineer", "frontend engineer", "full stack",
		"full-stack", "tech lead", "engineering manager",
		"software developer role", "developer position",
	}},
	{session.SignalTeamContext, []string{
		"our team", "my team", "our company", "our startup",
		"our engineering org", "at our", "we're building",
		"we are building", "our platform", "headcount",
	}},
}

// Detect returns the distinct signal kinds present in the text. A turn may
// contribute zero, one, or several kinds. Matching is case-insensitive
// phrase containment.
func Detect(text string) []session.SignalKind {
	t := strings.ToLower(text)
	var found []session.SignalKind
	for _, entry := range kindPhrases {
		for _, p := range entry.phrases {
			if strings.Contains(t, p) {
				found = append(found, entry.kind)
				break
			}
		}
	}
	return found
}
