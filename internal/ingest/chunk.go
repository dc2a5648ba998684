package ingest

import "strings"

// maxChunkLen caps chunk size in bytes (~250 tokens). Small chunks keep
// cosine scores sharp for short chat queries.
const maxChunkLen = 1000

// SplitChunks breaks text into chunks at paragraph boundaries, merging
// short paragraphs and splitting oversize ones at sentence boundaries.
func SplitChunks(text string) []string {
	paras := strings.Split(text, "\n\n")

	var chunks []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range paras {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) > maxChunkLen {
			flush()
			for _, piece := range splitLong(para) {
				chunks = append(chunks, piece)
			}
			continue
		}

		if current.Len() > 0 && current.Len()+len(para)+2 > maxChunkLen {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}

// splitLong splits an oversize paragraph at sentence ends, falling back to
// a hard cut for sentence-free text.
func splitLong(para string) []string {
	var pieces []string
	var current strings.Builder

	for _, sentence := range splitSentences(para) {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > maxChunkLen {
			pieces = append(pieces, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if len(sentence) > maxChunkLen {
			// No usable boundary: hard cut.
			for len(sentence) > maxChunkLen {
				pieces = append(pieces, sentence[:maxChunkLen])
				sentence = sentence[maxChunkLen:]
			}
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		pieces = append(pieces, s)
	}
	return pieces
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			if i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n' {
				out = append(out, strings.TrimSpace(text[start:i+1]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}
