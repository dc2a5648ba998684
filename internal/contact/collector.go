// Package contact slot-fills the visitor's email and name during the
// disclosure sub-dialogue. Validation failures are typed values, never
// panics; retry policy belongs to the calling state machine.
package contact

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError describes why a piece of contact input was rejected.
// It is recovered locally by re-prompting, never surfaced as a system
// failure.
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid contact input %q: %s", e.Input, e.Reason)
}

// emailPattern is a pragmatic RFC-lite check: local part, @, and a domain
// containing at least one dot. Stricter RFC 5322 parsing rejects addresses
// real people type and accepts ones no mail server delivers to.
var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// ValidateEmail scans the text for an email address and returns it
// normalized (trimmed, lowercased). The address may be embedded in a
// sentence ("sure, it's jane@acme.com").
func ValidateEmail(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", &ValidationError{Input: text, Reason: "empty input"}
	}

	for _, tok := range strings.Fields(trimmed) {
		tok = strings.Trim(tok, ".,;:!?()<>\"'")
		if emailPattern.MatchString(tok) {
			return strings.ToLower(tok), nil
		}
	}

	reason := "no email address found"
	if !strings.Contains(trimmed, "@") {
		reason = "missing @"
	} else if !strings.Contains(trimmed[strings.LastIndex(trimmed, "@"):], ".") {
		reason = "domain has no dot"
	}
	return "", &ValidationError{Input: trimmed, Reason: reason}
}

// introPatterns capture self-introductions. The captured group is the name.
var introPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is\s+([A-Za-z][A-Za-z .'\-]*)`),
	regexp.MustCompile(`(?i)\bi am\s+([A-Z][A-Za-z .'\-]*)`),
	regexp.MustCompile(`(?i)\bi'm\s+([A-Z][A-Za-z .'\-]*)`),
	regexp.MustCompile(`(?i)\bthis is\s+([A-Z][A-Za-z .'\-]*)`),
}

// declinePhrases mark a refusal to give a name; the caller substitutes a
// generic salutation instead of blocking progress.
var declinePhrases = []string{
	"no thanks", "rather not", "prefer not", "skip", "just send",
	"don't need", "no name", "anonymous",
}

// maxNameWords bounds free text accepted as a bare name.
const maxNameWords = 4

// ExtractName pulls a name from the text. It tries self-introduction
// patterns first, then falls back to treating short free text as the name
// itself. The second return value is false when nothing usable was found
// (including an explicit decline).
func ExtractName(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}

	lower := strings.ToLower(trimmed)
	for _, p := range declinePhrases {
		if strings.Contains(lower, p) {
			return "", false
		}
	}

	for _, re := range introPatterns {
		if m := re.FindStringSubmatch(trimmed); m != nil {
			if name := cleanName(m[1]); name != "" {
				return name, true
			}
		}
	}

	// Short free text with no sentence punctuation reads as a bare name.
	words := strings.Fields(trimmed)
	if len(words) <= maxNameWords && !strings.ContainsAny(trimmed, "?@/") {
		if name := cleanName(trimmed); name != "" {
			return name, true
		}
	}

	return "", false
}

func cleanName(raw string) string {
	name := strings.Trim(strings.TrimSpace(raw), ".,;:!?")
	words := strings.Fields(name)
	if len(words) == 0 || len(words) > maxNameWords {
		return ""
	}
	for _, w := range words {
		for _, r := range w {
			if !isNameRune(r) {
				return ""
			}
		}
	}
	return strings.Join(words, " ")
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		return true
	case r == '\'' || r == '-' || r == '.':
		return true
	}
	return false
}
