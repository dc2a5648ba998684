// Package ingest turns knowledge documents into searchable vectors through
// a background job queue, and extracts plain text from PDF and HTML sources.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mwhitfield/foliochat/internal/retrieval"
	"github.com/mwhitfield/foliochat/internal/storage"
)

// JobTypeEmbed is the queue type for knowledge embedding jobs.
const JobTypeEmbed = "knowledge_embed"

// JobStore abstracts the job queue and knowledge doc operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetKnowledgeDoc(id string) (storage.KnowledgeDoc, error)
	UpdateKnowledgeDocVectorID(id, vectorID string) error
}

// BatchEmbedder generates embeddings for text chunks.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorSink stores embedded chunks.
type VectorSink interface {
	Insert(records []retrieval.Record) error
	DeleteBySource(sourceID string) error
}

// Worker processes knowledge_embed jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	embedder BatchEmbedder
	vectors  VectorSink
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms. logger may be nil.
func NewWorker(store JobStore, embedder BatchEmbedder, vectors VectorSink, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		poll:     pollInterval,
		logger:   logger,
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single embedding job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeEmbed})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type embedPayload struct {
	DocID string `json:"doc_id"`
}

// EmbedJobPayload builds the payload JSON for a knowledge_embed job.
func EmbedJobPayload(docID string) string {
	b, _ := json.Marshal(embedPayload{DocID: docID})
	return string(b)
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload embedPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetKnowledgeDoc(payload.DocID)
	if err != nil {
		return fmt.Errorf("loading knowledge doc %s: %w", payload.DocID, err)
	}

	chunks := SplitChunks(doc.Content)
	if len(chunks) == 0 {
		return fmt.Errorf("knowledge doc %s has no content", doc.ID)
	}

	vecs, err := w.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}

	// Re-embedding replaces the doc's previous vectors wholesale.
	if err := w.vectors.DeleteBySource(doc.ID); err != nil {
		return fmt.Errorf("clearing old vectors: %w", err)
	}

	records := make([]retrieval.Record, len(chunks))
	now := time.Now().UTC()
	for i, chunk := range chunks {
		records[i] = retrieval.Record{
			ID:         uuid.New().String(),
			SourceID:   doc.ID,
			SourceType: "knowledge_doc",
			TextChunk:  chunk,
			Embedding:  vecs[i],
			CreatedAt:  now,
			Tags:       doc.Tags,
		}
	}

	if err := w.vectors.Insert(records); err != nil {
		return fmt.Errorf("inserting vectors: %w", err)
	}

	if err := w.store.UpdateKnowledgeDocVectorID(doc.ID, records[0].ID); err != nil {
		return fmt.Errorf("updating vector_id: %w", err)
	}

	return nil
}
