// Package classify tags a single visitor turn with a query category.
//
// Categories are matched by explicit phrase tables, not a language model.
// This is a deliberate simplicity choice: the tables are auditable and the
// classifier stays a pure function, at the cost of missing paraphrases the
// tables don't cover.
package classify

import (
	"strings"

	"github.com/mwhitfield/foliochat/internal/session"
)

// Category is a closed set of query categories, ordered by priority.
type Category string

const (
	CategoryResumeRequest Category = "explicit_resume_request"
	CategoryTechnical     Category = "technical"
	CategoryData          Category = "data_or_metrics"
	CategoryTeaching      Category = "teaching_moment"
	CategoryGreeting      Category = "greeting"
	CategoryGeneral       Category = "general"
)

// Confidence marks how sure the classifier is about its tag.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// Result is a classified turn.
type Result struct {
	Category   Category
	Confidence Confidence
}

// categoryPhrases pairs a category with its phrase set. Order is the
// priority order: the first matching category wins, which is the tie-break
// rule when a turn matches several sets.
var categoryPhrases = []struct {
	category Category
	phrases  []string
}{
	{CategoryResumeRequest, []string{
		"resume", "résumé", "cv", "curriculum vitae",
		"send it again", "send me your", "your contact info",
		"how do i contact", "how can i reach", "get in touch with you",
	}},
	{CategoryTechnical, []string{
		"how does", "how do you", "architecture", "implementation",
		"algorithm", "design", "stack", "language", "framework",
		"database", "api", "deploy", "scale", "performance",
		"vector search", "retrieval", "embedding",
	}},
	{CategoryData, []string{
		"how many", "metrics", "numbers", "statistics", "benchmark",
		"latency", "throughput", "uptime", "growth", "percentage",
	}},
	{CategoryTeaching, []string{
		"explain", "what is", "what are", "walk me through",
		"can you teach", "eli5", "in simple terms", "for a beginner",
	}},
	{CategoryGreeting, []string{
		"hello", "hi there", "hey", "good morning", "good afternoon",
		"good evening", "howdy",
	}},
}

// roleOverrides reroutes phrases for specific personas and is consulted
// after the resume-request set but before the general priority scan. A
// non-technical hiring manager asking "how" questions is usually after an
// accessible explanation, not implementation detail.
var roleOverrides = map[session.Role][]struct {
	category Category
	phrases  []string
}{
	session.RoleHiringManagerNonTechnical: {
		{CategoryTeaching, []string{"how does", "how do you", "what does"}},
	},
}

// Classify tags the query with the highest-priority matching category.
// Empty or whitespace-only queries classify as general with low confidence.
// The function is pure: it never mutates session state.
func Classify(query string, role session.Role) Result {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Result{Category: CategoryGeneral, Confidence: ConfidenceLow}
	}

	// Explicit resume requests outrank everything, including overrides.
	if matchesAny(q, categoryPhrases[0].phrases) {
		return Result{Category: CategoryResumeRequest, Confidence: ConfidenceHigh}
	}

	for _, ov := range roleOverrides[role] {
		if matchesAny(q, ov.phrases) {
			return Result{Category: ov.category, Confidence: ConfidenceHigh}
		}
	}

	for _, entry := range categoryPhrases[1:] {
		if matchesAny(q, entry.phrases) {
			return Result{Category: entry.category, Confidence: ConfidenceHigh}
		}
	}

	return Result{Category: CategoryGeneral, Confidence: ConfidenceLow}
}

func matchesAny(q string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(q, p) {
			return true
		}
	}
	return false
}
