// Package jobdetails opportunistically harvests company, position, and
// timeline from visitor text after a resume has been delivered. Extraction
// is best-effort phrase matching; fields already captured are never
// overwritten.
package jobdetails

import (
	"regexp"
	"strings"

	"github.com/mwhitfield/foliochat/internal/session"
)

// Company captures stay case-sensitive: a capitalized token after the
// trigger is the only signal separating "at Initech" from "at some startup".
var companyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?i:i work at|i'm with|i am with|we're at|here at|company is|from)\s+([A-Z][A-Za-z0-9&.\-]*(?:\s+[A-Z][A-Za-z0-9&.\-]*){0,2})`),
	regexp.MustCompile(`\bat\s+([A-Z][A-Za-z0-9&.\-]*(?:\s+[A-Z][A-Za-z0-9&.\-]*){0,2})`),
}

var positionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:hiring for|looking for|role is|position is|opening for)\s+(?:an?\s+)?([A-Za-z][A-Za-z /\-]{2,40}?)(?:\s+(?:role|position|opening)\b|[.,;!?]|$)`),
	regexp.MustCompile(`(?i)\b(senior|staff|principal|lead|junior)\s+([a-z]+(?:\s+[a-z]+)?\s*(?:engineer|developer|architect|scientist))`),
}

var timelinePhrases = []string{
	"asap", "as soon as possible", "immediately", "right away",
	"this week", "next week", "this month", "next month",
	"this quarter", "next quarter", "by end of",
}

var timelinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:in|within)\s+(?:the next\s+)?(\d+|a|two|three|four|six)\s+(days?|weeks?|months?)\b`),
	regexp.MustCompile(`(?i)\bstart(?:ing)?\s+(?:in|by)\s+(january|february|march|april|may|june|july|august|september|october|november|december|q[1-4])\b`),
}

// Extract returns a patch containing only fields that are still unset in
// existing and were found in the text. An empty patch means nothing new was
// extracted; the caller decides whether to ask a follow-up.
func Extract(text string, existing session.JobDetails) session.JobDetails {
	var patch session.JobDetails

	if existing.Company == "" {
		patch.Company = findCompany(text)
	}
	if existing.Position == "" {
		patch.Position = findPosition(text)
	}
	if existing.Timeline == "" {
		patch.Timeline = findTimeline(text)
	}
	return patch
}

func findCompany(text string) string {
	for _, re := range companyPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			name := strings.TrimRight(strings.TrimSpace(m[1]), ".,;:!?")
			if name != "" && !stopWord(name) {
				return name
			}
		}
	}
	return ""
}

// stopWord filters capitalized sentence starts that the loose "at X"
// pattern picks up ("at Least", "at My").
func stopWord(s string) bool {
	switch strings.ToLower(strings.Fields(s)[0]) {
	case "the", "my", "our", "a", "an", "least", "first", "last", "this", "that":
		return true
	}
	return false
}

func findPosition(text string) string {
	for _, re := range positionPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			pos := strings.TrimSpace(m[1])
			if len(m) > 2 && m[2] != "" {
				pos = strings.TrimSpace(m[1] + " " + m[2])
			}
			pos = strings.TrimRight(pos, ".,;:!?")
			if pos != "" {
				return strings.ToLower(pos)
			}
		}
	}
	return ""
}

func findTimeline(text string) string {
	lower := strings.ToLower(text)
	for _, p := range timelinePhrases {
		if strings.Contains(lower, p) {
			return p
		}
	}
	for _, re := range timelinePatterns {
		if m := re.FindString(text); m != "" {
			return strings.ToLower(m)
		}
	}
	return ""
}
