// Package compose assembles the prompt for answer generation from the
// visitor's role, the conversation history, and retrieved background chunks.
package compose

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mwhitfield/foliochat/internal/engine"
	"github.com/mwhitfield/foliochat/internal/retrieval"
	"github.com/mwhitfield/foliochat/internal/session"
)

const defaultMaxContextTokens = 4000

// Composer builds chat messages for the inference engine. Retrieved chunks
// are injected into the system message under a token budget.
type Composer struct {
	OwnerName        string
	MaxContextTokens int
}

// New creates a Composer speaking on behalf of the named portfolio owner.
// If maxContextTokens <= 0, the default (4000) is used.
func New(ownerName string, maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{OwnerName: ownerName, MaxContextTokens: maxContextTokens}
}

// roleTone maps a visitor role to a style instruction for the generator.
var roleTone = map[session.Role]string{
	session.RoleDeveloper:                 "The visitor is a software developer. Be precise and go into technical depth.",
	session.RoleHiringManagerTechnical:    "The visitor is a technical hiring manager. Balance technical depth with outcomes and ownership.",
	session.RoleHiringManagerNonTechnical: "The visitor is a non-technical hiring manager. Explain technical topics in plain language with short analogies.",
	session.RoleExplorer:                  "The visitor is browsing out of curiosity. Keep answers friendly and accessible.",
}

// Compose builds the message list for one turn: a system message carrying
// the persona, role tone, and retrieved background, followed by the trimmed
// conversation history and the current question.
func (c *Composer) Compose(role session.Role, history []session.Message, chunks []retrieval.ContextChunk, query string) []engine.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the portfolio assistant for %s. Answer questions about their background, projects, and experience, speaking about %s in the third person. Only use facts from the background section; if the background does not cover something, say so briefly.", c.OwnerName, c.OwnerName)

	if tone, ok := roleTone[role]; ok {
		sb.WriteString("\n\n")
		sb.WriteString(tone)
	}

	if section := c.buildContextSection(chunks); section != "" {
		sb.WriteString(section)
	}

	msgs := make([]engine.Message, 0, len(history)+2)
	msgs = append(msgs, engine.Message{Role: "system", Content: sb.String()})
	for _, m := range history {
		role := "assistant"
		if m.Speaker == session.SpeakerVisitor {
			role = "user"
		}
		msgs = append(msgs, engine.Message{Role: role, Content: m.Text})
	}
	msgs = append(msgs, engine.Message{Role: "user", Content: query})
	return msgs
}

// buildContextSection formats retrieved chunks under the token budget,
// dropping lowest-scoring chunks first.
func (c *Composer) buildContextSection(chunks []retrieval.ContextChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	sorted := make([]retrieval.ContextChunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	header := "\n\n[Background]\n"
	remaining := c.MaxContextTokens - EstimateTokens(header)

	var selected []string
	for _, ch := range sorted {
		entry := formatChunk(ch)
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			continue
		}
		selected = append(selected, entry)
		remaining -= tokens
	}
	if len(selected) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(header)
	for _, entry := range selected {
		sb.WriteString(entry)
	}
	return sb.String()
}

func formatChunk(ch retrieval.ContextChunk) string {
	return fmt.Sprintf("(Score: %.2f, Source: %s:%s)\n%s\n\n", ch.Score, ch.SourceType, ch.SourceID, ch.Text)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
