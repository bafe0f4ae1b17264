// Package server exposes the graph service over JSON HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"taskflow/internal/app"
	"taskflow/internal/logging"
	"taskflow/internal/ratelimit"
	"taskflow/internal/security"

	"github.com/google/uuid"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type ctxKey int

const requestIDKey ctxKey = iota

// Server routes HTTP requests to the service.
type Server struct {
	svc      *app.Service
	limiter  *ratelimit.KeyedLimiter
	redactor *security.SecretRedactor
	status   func() app.Status
	clock    func() time.Time
	version  string
}

// Option customizes server construction.
type Option func(*Server)

// WithLimiter throttles each user independently.
func WithLimiter(l *ratelimit.KeyedLimiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithStatus adds runtime details to /health.
func WithStatus(fn func() app.Status) Option {
	return func(s *Server) { s.status = fn }
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a server for svc.
func New(svc *app.Service, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		redactor: security.NewSecretRedactor(),
		clock:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the routed handler with request logging attached.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return s.withRequestID(mux)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /users/{id}/graph", s.perUser(s.handleGetGraph))
	mux.HandleFunc("DELETE /users/{id}/graph", s.perUser(s.handleClearGraph))
	mux.HandleFunc("POST /users/{id}/utterances", s.perUser(s.handleUtterance))
	mux.HandleFunc("POST /users/{id}/graph/tasks", s.perUser(s.handleAddTask))
	mux.HandleFunc("POST /users/{id}/graph/rename", s.perUser(s.handleRename))
	mux.HandleFunc("POST /users/{id}/graph/rebuild", s.perUser(s.handleRebuild))

	mux.HandleFunc("GET /users/{id}/routines", s.perUser(s.handleListRoutines))
	mux.HandleFunc("POST /users/{id}/routines", s.perUser(s.handleSaveRoutine))
	mux.HandleFunc("POST /users/{id}/routines/{name}/load", s.perUser(s.handleLoadRoutine))

	mux.HandleFunc("POST /users/{id}/reset", s.perUser(s.handleReset))
	mux.HandleFunc("GET /users/{id}/insights", s.perUser(s.handleInsights))
	mux.HandleFunc("GET /users/{id}/activity", s.perUser(s.handleGetActivity))
	mux.HandleFunc("POST /users/{id}/activity", s.perUser(s.handleLogActivity))
	mux.HandleFunc("GET /users/{id}/goals", s.perUser(s.handleGetGoals))
	mux.HandleFunc("POST /users/{id}/goals", s.perUser(s.handleCreateGoal))
	mux.HandleFunc("GET /users/{id}/metrics", s.perUser(s.handleMetrics))
}

// statusRecorder captures the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		logging.Debug("request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(started))
	})
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// perUser applies the per-user rate limit before next runs.
func (s *Server) perUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("id")
		if ok, retryAfter := s.limiter.Allow(userID); !ok {
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			s.writeJSON(w, http.StatusTooManyRequests, errorBody{
				Error:   "rate_limited",
				Message: fmt.Sprintf("too many requests, retry in %ds", retryAfter),
			})
			return
		}
		next(w, r)
	}
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return app.NewAppError(app.ErrCodeInvalidInput, "invalid request body", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Debug("failed to write response", "error", err)
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch app.CodeOf(err) {
	case app.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case app.ErrCodeNotFound:
		return http.StatusNotFound
	case app.ErrCodeConflict:
		return http.StatusConflict
	case app.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case app.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := s.redactor.Redact(err.Error())
	if status >= http.StatusInternalServerError {
		logging.Error("request failed",
			"request_id", RequestID(r.Context()),
			"path", r.URL.Path,
			"error", msg)
	}
	s.writeJSON(w, status, errorBody{
		Error:     app.CodeOf(err).String(),
		Message:   msg,
		RequestID: RequestID(r.Context()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"ok":   true,
		"time": s.clock().Format(time.RFC3339),
	}
	if s.version != "" {
		body["version"] = s.version
	}
	if s.status != nil {
		body["status"] = s.status()
	}
	s.writeJSON(w, http.StatusOK, body)
}
