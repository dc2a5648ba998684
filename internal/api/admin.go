package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mwhitfield/foliochat/internal/ingest"
	"github.com/mwhitfield/foliochat/internal/storage"
)

const maxKnowledgeBodySize = 10 << 20 // 10MB
const maxURLFetchSize = 5 << 20       // 5MB

// KnowledgeRequest is the admin ingest payload. Exactly how the content is
// resolved depends on type: "text" stores content as-is, "pdf" decodes
// base64 content and extracts text, "url" fetches and strips the page.
type KnowledgeRequest struct {
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	URL     string   `json:"url"`
	Tags    []string `json:"tags"`
}

// VectorCleaner removes a document's vectors when the document is deleted.
type VectorCleaner interface {
	DeleteBySource(sourceID string) error
}

// AdminDeps holds dependencies for the authenticated admin surface.
type AdminDeps struct {
	Store      *storage.Store
	Token      string
	HTTPClient *http.Client
	Vectors    VectorCleaner // optional; if nil, vector cleanup is skipped on delete
}

// NewAdminHandler returns the bearer-authenticated admin API: knowledge
// ingestion and inspection of sessions, turns, and distributions.
func NewAdminHandler(deps AdminDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token))

	r.Post("/knowledge", handleAddKnowledge(deps))
	r.Get("/knowledge", handleListKnowledge(deps))
	r.Get("/knowledge/{id}", handleGetKnowledge(deps))
	r.Delete("/knowledge/{id}", handleDeleteKnowledge(deps))

	r.Get("/sessions", handleListSessions(deps))
	r.Get("/sessions/{id}", handleGetSession(deps))
	r.Delete("/sessions/{id}", handleDeleteSession(deps))
	r.Get("/sessions/{id}/turns", handleListTurns(deps))
	r.Get("/sessions/{id}/distribution", handleGetDistribution(deps))

	return r
}

func handleAddKnowledge(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxKnowledgeBodySize)
		defer r.Body.Close()

		var req KnowledgeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.Content == "" && req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of content or url is required")
			return
		}
		if req.Type == "" {
			req.Type = "text"
		}

		var resolvedContent string
		switch {
		case req.Type == "url" && req.URL != "":
			text, err := fetchURLText(r.Context(), deps.HTTPClient, req.URL)
			if err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "fetching url: %v", err)
				return
			}
			resolvedContent = text
			if req.Title == "" {
				req.Title = req.URL
			}

		case req.Type == "pdf" && req.Content != "":
			text, err := decodePDFText(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "decoding pdf: %v", err)
				return
			}
			resolvedContent = text

		default:
			resolvedContent = req.Content
		}

		if strings.TrimSpace(resolvedContent) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "resolved content is empty")
			return
		}

		docID := uuid.New().String()

		tagsJSON := "[]"
		if len(req.Tags) > 0 {
			b, err := json.Marshal(req.Tags)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "marshaling tags: %v", err)
				return
			}
			tagsJSON = string(b)
		}

		doc := storage.KnowledgeDoc{
			ID:        docID,
			Title:     req.Title,
			Content:   resolvedContent,
			Source:    req.Type,
			Tags:      tagsJSON,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveKnowledgeDoc(doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving document: %v", err)
			return
		}

		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        ingest.JobTypeEmbed,
			PayloadJSON: ingest.EmbedJobPayload(docID),
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "enqueueing embed job: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"id":     docID,
			"status": "queued",
		})
	}
}

// fetchURLText downloads a page and extracts its readable text.
func fetchURLText(ctx context.Context, client *http.Client, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.New("url returned status " + strconv.Itoa(resp.StatusCode))
	}

	return ingest.ExtractHTML(io.LimitReader(resp.Body, maxURLFetchSize))
}

// decodePDFText decodes a base64 PDF and extracts its text. The extractor
// wants a file path, so the bytes go through a temp file.
func decodePDFText(content string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", errors.New("content is not valid base64")
	}

	f, err := os.CreateTemp("", "knowledge-*.pdf")
	if err != nil {
		return "", err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(raw); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	return ingest.ExtractPDF(f.Name())
}

func handleListKnowledge(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		docs, err := deps.Store.ListKnowledgeDocs(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing knowledge docs: %v", err)
			return
		}
		if docs == nil {
			docs = []storage.KnowledgeDoc{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(docs)
	}
}

func handleGetKnowledge(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := deps.Store.GetKnowledgeDoc(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "knowledge doc not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting knowledge doc: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}
}

func handleDeleteKnowledge(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if _, err := deps.Store.GetKnowledgeDoc(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "knowledge doc not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting knowledge doc: %v", err)
			return
		}

		if deps.Vectors != nil {
			_ = deps.Vectors.DeleteBySource(id)
		}

		if err := deps.Store.DeleteKnowledgeDoc(id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting knowledge doc: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleListSessions(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		sessions, err := deps.Store.ListSessions(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing sessions: %v", err)
			return
		}
		if sessions == nil {
			sessions = []storage.SessionRow{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessions)
	}
}

func handleGetSession(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		row, err := deps.Store.GetSession(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting session: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(row)
	}
}

func handleDeleteSession(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteSession(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting session: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleListTurns(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		limit := parseIntParam(r, "limit", 50, 500)

		turns, err := deps.Store.ListTurns(id, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing turns: %v", err)
			return
		}
		if turns == nil {
			turns = []storage.Turn{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(turns)
	}
}

func handleGetDistribution(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		dist, err := deps.Store.GetDistribution(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no distribution for session")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting distribution: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(dist)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
