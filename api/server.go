// Package api implements the Public API surface (spec.md §4.8, C8): the six
// HTTP endpoints the optimization core exposes over the Orchestrator, Event
// Bus, and Recovery Store. It is grounded on the teacher's
// example/cmd/assistant/http.go bootstrap idiom (a *http.Server wrapping a
// request multiplexer, goa.design/clue/log request logging) and on
// codeready-toolchain-tarsy's pkg/api.Server shape: a single struct holding
// every collaborator service, built by a constructor that mounts routes once
// up front.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/resumeforge/tailorcore/eventbus"
	"github.com/resumeforge/tailorcore/orchestrator"
	"github.com/resumeforge/tailorcore/recovery"
	"github.com/resumeforge/tailorcore/telemetry"
)

// ClientIDHeader carries the client-persisted 128-bit hex identifier used for
// quota enforcement (spec.md §6).
const ClientIDHeader = "X-Client-Id"

// Server holds every collaborator the HTTP surface delegates to and the
// mounted router built from them.
type Server struct {
	Orchestrator *orchestrator.Orchestrator
	Bus          *eventbus.Bus
	Store        recovery.Store
	Renderer     Renderer
	Logger       telemetry.Logger

	router chi.Router
}

// NewServer constructs a Server and mounts every route. Renderer defaults to
// UnavailableRenderer and Logger to telemetry.NewNoopLogger() when nil.
func NewServer(orch *orchestrator.Orchestrator, bus *eventbus.Bus, store recovery.Store, renderer Renderer, logger telemetry.Logger) *Server {
	if renderer == nil {
		renderer = UnavailableRenderer{}
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	s := &Server{
		Orchestrator: orch,
		Bus:          bus,
		Store:        store,
		Renderer:     renderer,
		Logger:       logger,
	}
	s.setupRoutes()
	return s
}

// ServeHTTP makes Server itself usable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s))

	r.Post("/pipeline/start", s.handleStartRun)
	r.Get("/jobs/{run_id}/stream", s.handleStream)
	r.Get("/jobs/{run_id}/snapshot", s.handleSnapshot)
	r.Post("/optimize-retry", s.handleOptimizeRetry)
	r.Get("/recovery-session/{id}", s.handleGetSession)
	r.Delete("/recovery-session/{id}", s.handleDeleteSession)
	r.Get("/export/{run_id}", s.handleExport)

	s.router = r
}

// requestLogger logs the outcome of every request through Server's Logger,
// mirroring the teacher's log.HTTP(ctx) access-log middleware.
func requestLogger(s *Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			s.Logger.Info(r.Context(), "http request",
				"method", r.Method, "path", r.URL.Path,
				"status", ww.Status(), "duration_ms", time.Since(start).Milliseconds())
		})
	}
}

// clientID extracts spec.md §6's required X-Client-Id header.
func clientID(r *http.Request) string {
	return r.Header.Get(ClientIDHeader)
}
