package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/stepflow"
	"github.com/aretw0/stepflow/internal/logging"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/ports"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
)

//go:embed openapi.yaml
var rawSpec []byte

var (
	swaggerOnce sync.Once
	swaggerDoc  *openapi3.T
	swaggerErr  error
)

// GetSwagger returns the parsed and validated OpenAPI document served at /openapi.yaml.
func GetSwagger() (*openapi3.T, error) {
	swaggerOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(rawSpec)
		if err != nil {
			swaggerErr = fmt.Errorf("failed to load openapi document: %w", err)
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			swaggerErr = fmt.Errorf("invalid openapi document: %w", err)
			return
		}
		swaggerDoc = doc
	})
	return swaggerDoc, swaggerErr
}

// Server exposes a Wizard over HTTP.
type Server struct {
	Wizard  ports.Wizard
	Streams *StreamManager
	Watcher ports.Watchable
	Metrics http.Handler
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithStreams shares a StreamManager whose Hooks are wired into the engine.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithWatcher enables the catalog reload stream on /events.
func WithWatcher(w ports.Watchable) Option {
	return func(s *Server) {
		s.Watcher = w
	}
}

// WithMetrics mounts a metrics handler on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.Metrics = h
	}
}

// WithLogger configures request logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates a new HTTP handler for the wizard.
func NewHandler(wizard ports.Wizard, opts ...Option) http.Handler {
	return enableCORS(NewRouter(wizard, opts...))
}

// NewRouter builds the route table without the CORS middleware.
func NewRouter(wizard ports.Wizard, opts ...Option) chi.Router {
	server := &Server{
		Wizard: wizard,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(server)
	}
	if server.Streams == nil {
		server.Streams = NewStreamManager()
	}
	server.Streams.logger = server.logger

	r := chi.NewRouter()
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/health", server.GetHealth)
	r.Get("/info", server.GetInfo)
	r.Get("/registry/status", server.GetRegistryStatus)
	r.Get("/events", server.SubscribeEvents)
	if server.Metrics != nil {
		r.Handle("/metrics", server.Metrics)
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", server.StartSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", server.GetSession)
			r.Delete("/", server.EndSession)
			r.Get("/view", server.View)
			r.Post("/advance", server.Advance)
			r.Post("/retreat", server.Retreat)
			r.Post("/reset", server.Reset)
			r.Post("/goto", server.GoTo)
			r.Post("/complete", server.Complete)
			r.Post("/profile", server.ActivateProfile)
			r.Delete("/profile", server.DeactivateProfile)
		})
	})

	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type startRequest struct {
	Flags map[string]bool `json:"flags"`
}

type goToRequest struct {
	StepID domain.StepID `json:"step_id"`
}

type completeRequest struct {
	StepID  domain.StepID  `json:"step_id"`
	Payload domain.Payload `json:"payload"`
}

type profileRequest struct {
	ProfileID string `json:"profile_id"`
}

// StartSession handles POST /sessions.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if !s.decode(w, r, &body, true) {
		return
	}
	snap, err := s.Wizard.StartSession(r.Context(), body.Flags)
	if err != nil {
		s.fail(w, "StartSession", err)
		return
	}
	s.respond(w, http.StatusCreated, snap)
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Wizard.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "GetSession", err)
		return
	}
	s.respond(w, http.StatusOK, snap)
}

// EndSession handles DELETE /sessions/{id}.
func (s *Server) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Wizard.EndSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, "EndSession", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// View handles GET /sessions/{id}/view.
func (s *Server) View(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Wizard.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "View", err)
		return
	}
	view := domain.View{}
	if snap.View != nil {
		view = *snap.View
	}
	s.respond(w, http.StatusOK, view)
}

// Advance handles POST /sessions/{id}/advance.
func (s *Server) Advance(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, "Advance", func() (domain.NavigationResult, error) {
		return s.Wizard.Advance(r.Context(), chi.URLParam(r, "id"))
	})
}

// Retreat handles POST /sessions/{id}/retreat.
func (s *Server) Retreat(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, "Retreat", func() (domain.NavigationResult, error) {
		return s.Wizard.Retreat(r.Context(), chi.URLParam(r, "id"))
	})
}

// Reset handles POST /sessions/{id}/reset.
func (s *Server) Reset(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, "Reset", func() (domain.NavigationResult, error) {
		return s.Wizard.Reset(r.Context(), chi.URLParam(r, "id"))
	})
}

// GoTo handles POST /sessions/{id}/goto.
func (s *Server) GoTo(w http.ResponseWriter, r *http.Request) {
	var body goToRequest
	if !s.decode(w, r, &body, false) {
		return
	}
	s.navigate(w, "GoTo", func() (domain.NavigationResult, error) {
		return s.Wizard.GoTo(r.Context(), chi.URLParam(r, "id"), body.StepID)
	})
}

// Complete handles POST /sessions/{id}/complete.
func (s *Server) Complete(w http.ResponseWriter, r *http.Request) {
	var body completeRequest
	if !s.decode(w, r, &body, false) {
		return
	}
	s.navigate(w, "Complete", func() (domain.NavigationResult, error) {
		return s.Wizard.Complete(r.Context(), chi.URLParam(r, "id"), body.StepID, body.Payload)
	})
}

// ActivateProfile handles POST /sessions/{id}/profile.
func (s *Server) ActivateProfile(w http.ResponseWriter, r *http.Request) {
	var body profileRequest
	if !s.decode(w, r, &body, false) {
		return
	}
	s.navigate(w, "ActivateProfile", func() (domain.NavigationResult, error) {
		return s.Wizard.ActivateProfile(r.Context(), chi.URLParam(r, "id"), body.ProfileID)
	})
}

// DeactivateProfile handles DELETE /sessions/{id}/profile.
func (s *Server) DeactivateProfile(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, "DeactivateProfile", func() (domain.NavigationResult, error) {
		return s.Wizard.DeactivateProfile(r.Context(), chi.URLParam(r, "id"))
	})
}

// GetRegistryStatus handles GET /registry/status.
func (s *Server) GetRegistryStatus(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.Wizard.RegistryStatus(r.Context()))
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	}
	s.respond(w, http.StatusOK, map[string]string{
		"app":         "stepflow-http",
		"version":     strings.TrimSpace(stepflow.Version),
		"api_version": apiVersion,
	})
}

// SubscribeEvents handles the GET /events request (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		s.streamReloads(w, r, flusher)
		return
	}

	keep := make(map[domain.EventType]bool)
	if raw := r.URL.Query().Get("watch"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			keep[domain.EventType(strings.TrimSpace(t))] = true
		}
	}

	s.logger.Info("SSE: Subscribing to session events", "session_id", sessionID)
	ch, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(keep) > 0 && !keep[msg.Type] {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, msg.Data)
			flusher.Flush()
		}
	}
}

func (s *Server) streamReloads(w http.ResponseWriter, r *http.Request, flusher http.Flusher) {
	if s.Watcher == nil {
		s.fail(w, "SubscribeEvents", errors.New("catalog watching is not enabled"))
		return
	}
	events, err := s.Watcher.Watch(r.Context())
	if err != nil {
		s.fail(w, "SubscribeEvents", fmt.Errorf("watch error: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: reload\ndata: %s\n\n", event)
			flusher.Flush()
		}
	}
}

// -- Helpers --

func (s *Server) navigate(w http.ResponseWriter, op string, fn func() (domain.NavigationResult, error)) {
	res, err := fn()
	if err != nil {
		s.fail(w, op, err)
		return
	}
	s.respond(w, http.StatusOK, res)
}

// decode reads a JSON body. An empty body is accepted only when optional is set.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
	s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	return false
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Debug(op+" rejected", "err", err, "status", status)
	}
	s.respond(w, status, map[string]string{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrStepNotFound),
		errors.Is(err, domain.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrProfileInUse):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPayloadRejected),
		errors.Is(err, domain.ErrInvalidDefinition):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
