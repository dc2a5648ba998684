package retrieval

import "time"

// VectorStore is the storage and similarity-search backend for knowledge
// vectors. The default implementation is SQLite with brute-force cosine
// similarity, which is plenty for a personal knowledge base.
type VectorStore interface {
	// Insert adds records.
	Insert(records []Record) error

	// Search returns the top-K records most similar to the query vector.
	Search(vector []float32, topK int) ([]ScoredRecord, error)

	// Delete removes a record by ID.
	Delete(id string) error

	// DeleteBySource removes all records derived from a source document.
	DeleteBySource(sourceID string) error

	// Count returns the number of stored records.
	Count() (int, error)
}

// Record is a row in the vector store: one embedded chunk of a knowledge
// document.
type Record struct {
	ID         string
	SourceID   string
	SourceType string
	TextChunk  string
	Embedding  []float32
	CreatedAt  time.Time
	Tags       string // JSON array stored as text
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
