// Package retrieval finds knowledge-base chunks relevant to a visitor's
// question by embedding the query and searching the vector store.
package retrieval

import (
	"context"
	"time"
)

// ContextChunk is a retrieved knowledge fragment with its similarity score.
type ContextChunk struct {
	ID         string
	SourceID   string
	SourceType string
	Text       string
	Score      float32
	Tags       string
	CreatedAt  time.Time
}

// Retriever combines embedding and vector search to find relevant context.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
func NewRetriever(embedder *Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve embeds the query and returns the top-K most similar chunks with
// score >= minScore. Chunks below the floor are noise for short chat queries,
// so they are dropped rather than passed to the generator.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, minScore float32) ([]ContextChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := r.store.Search(vec, topK)
	if err != nil {
		return nil, err
	}

	chunks := make([]ContextChunk, 0, len(scored))
	for _, s := range scored {
		if s.Score < minScore {
			continue
		}
		chunks = append(chunks, ContextChunk{
			ID:         s.ID,
			SourceID:   s.SourceID,
			SourceType: s.SourceType,
			Text:       s.TextChunk,
			Score:      s.Score,
			Tags:       s.Tags,
			CreatedAt:  s.CreatedAt,
		})
	}
	return chunks, nil
}
