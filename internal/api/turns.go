package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mwhitfield/foliochat/internal/turn"
)

const maxRequestBodySize = 1 << 20 // 1MB

// TurnProcessor runs one visitor turn. Implemented by turn.Pipeline.
type TurnProcessor interface {
	Process(ctx context.Context, req turn.Request) (turn.Response, error)
}

// NewPublicHandler returns the unauthenticated visitor-facing API: the
// chat turn endpoint and a health probe.
func NewPublicHandler(turns TurnProcessor) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/v1/turns", handleTurn(turns))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleTurn(turns TurnProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req turn.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required and must not be empty")
			return
		}

		resp, err := turns.Process(r.Context(), req)
		if errors.Is(err, turn.ErrUnknownRole) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "role is required for a new session and must be one of the known personas")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "processing turn: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
