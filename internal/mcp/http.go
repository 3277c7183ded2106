package mcp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/zjrosen/boardwalk/internal/log"
	"github.com/zjrosen/boardwalk/internal/tracing"
)

// MaxRequestBytes bounds one HTTP request body.
const MaxRequestBytes = 4 << 20

// RequestIDHeader carries the id assigned to each HTTP request.
const RequestIDHeader = "X-Request-Id"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// Routes returns the HTTP handler: POST /mcp for JSON-RPC, GET /health
// and, when metrics are configured, GET /metrics.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /mcp", s.handleHTTP)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return withRequestID(mux)
}

func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}

	resp := s.handleMessage(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// withRequestID tags every request with an id, reusing the client's when
// it sent one, and exposes it to spans through the context.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)

		log.Debug(log.CatHTTP, "request", "method", r.Method, "path", r.URL.Path, "requestID", id)
		next.ServeHTTP(w, r.WithContext(tracing.ContextWithRequestID(r.Context(), id)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug(log.CatHTTP, "Failed to write response", "error", err)
	}
}
