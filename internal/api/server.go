package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/build-progress/internal/adapter"
	"github.com/JakeFAU/build-progress/internal/metrics"
	"github.com/JakeFAU/build-progress/internal/tracker"
)

const (
	maxHookBody    = 1 << 20
	requestTimeout = 30 * time.Second
)

// HookApplier forwards hooks to the tracker.
type HookApplier interface {
	Apply(ctx context.Context, h adapter.Hook) (adapter.Outcome, error)
}

// StatusSource reports the tracker's state.
type StatusSource interface {
	Status() tracker.Status
}

// Deps wires the server's collaborators.
type Deps struct {
	Hooks    HookApplier
	Status   StatusSource
	Metrics  *metrics.HTTP
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	// APIKey, when set, is required on every request via X-API-Key or ?api_key=.
	APIKey string
}

// Server routes HTTP requests to the hook adapter.
type Server struct {
	router chi.Router
	hooks  HookApplier
	status StatusSource
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		hooks:  deps.Hooks,
		status: deps.Status,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(timeoutMiddleware(requestTimeout))
	if deps.APIKey != "" {
		r.Use(apiKeyMiddleware(deps.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/hooks", s.postHooks)
		r.Get("/progress", s.getProgress)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.hooks == nil || s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "tracker not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type hookResult struct {
	Hook       string `json:"hook"`
	Outcome    string `json:"outcome"`
	BuildError string `json:"build_error,omitempty"`
}

// postHooks applies hooks in order. The whole batch is validated first, so a
// rejected request changes nothing. A failed build surfacing on closeBundle
// is reported in the result; it is not an HTTP error.
func (s *Server) postHooks(w http.ResponseWriter, r *http.Request) {
	if s.hooks == nil {
		writeError(w, http.StatusServiceUnavailable, "tracker not configured")
		return
	}
	hooks, err := decodeHooks(io.LimitReader(r.Body, maxHookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	for i, h := range hooks {
		if err := adapter.Validate(h); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("hook %d: %v", i, err))
			return
		}
	}

	results := make([]hookResult, 0, len(hooks))
	for _, h := range hooks {
		outcome, applyErr := s.hooks.Apply(r.Context(), h)
		res := hookResult{Hook: h.Name, Outcome: string(outcome)}
		switch {
		case applyErr == nil:
		case errors.Is(applyErr, adapter.ErrInvalidHook):
			writeError(w, http.StatusBadRequest, applyErr.Error())
			return
		default:
			res.BuildError = applyErr.Error()
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func decodeHooks(r io.Reader) ([]adapter.Hook, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	if body[0] == '[' {
		var hooks []adapter.Hook
		if err := json.Unmarshal(body, &hooks); err != nil {
			return nil, errors.New("invalid JSON")
		}
		return hooks, nil
	}
	var h adapter.Hook
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, errors.New("invalid JSON")
	}
	return []adapter.Hook{h}, nil
}

type counterDTO struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

type progressDTO struct {
	BuildID    string     `json:"build_id,omitempty"`
	Active     bool       `json:"active"`
	Finished   bool       `json:"finished"`
	Failed     bool       `json:"failed"`
	Mode       string     `json:"mode,omitempty"`
	Percent    float64    `json:"percent"`
	Transforms counterDTO `json:"transforms"`
	Chunks     counterDTO `json:"chunks"`
	ElapsedMS  int64      `json:"elapsed_ms"`
}

func (s *Server) getProgress(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "tracker not configured")
		return
	}
	st := s.status.Status()
	writeJSON(w, http.StatusOK, progressDTO{
		BuildID:    st.BuildID,
		Active:     st.Active,
		Finished:   st.Finished,
		Failed:     st.Failed,
		Mode:       st.Mode,
		Percent:    st.Snapshot.Percent,
		Transforms: counterDTO{Current: st.Snapshot.TransformCurrent, Total: st.Snapshot.TransformTotal},
		Chunks:     counterDTO{Current: st.Snapshot.ChunkCurrent, Total: st.Snapshot.ChunkTotal},
		ElapsedMS:  st.Elapsed.Milliseconds(),
	})
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Debug("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("panic", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
