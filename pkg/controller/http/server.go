package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/betwatch/casekeeper/pkg/domain/types"
	"github.com/betwatch/casekeeper/pkg/usecase"
	"github.com/betwatch/casekeeper/pkg/utils/logging"
)

// ActorHeader carries the identity of the acting user. It is set by the authenticating proxy in
// front of the service and recorded as-is.
const ActorHeader = "X-Actor-ID"

type Server struct {
	router       *chi.Mux
	uc           *usecase.UseCases
	defaultActor types.ActorID
	allowOrigins []string
	registry     *prometheus.Registry
	metrics      *Metrics
}

type Options func(*Server)

// WithDefaultActor is used when a request carries no actor header. Without it such requests are
// rejected.
func WithDefaultActor(actor types.ActorID) Options {
	return func(s *Server) {
		s.defaultActor = actor
	}
}

// WithAllowedOrigins enables CORS for browser clients served from origins
func WithAllowedOrigins(origins []string) Options {
	return func(s *Server) {
		s.allowOrigins = origins
	}
}

// WithRegistry exposes metrics of registry on /metrics
func WithRegistry(registry *prometheus.Registry) Options {
	return func(s *Server) {
		s.registry = registry
	}
}

func New(uc *usecase.UseCases, opts ...Options) (*Server, error) {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		uc:     uc,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.registry != nil {
		m, err := NewMetrics(s.registry)
		if err != nil {
			return nil, err
		}
		s.metrics = m
	}

	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.middleware)
	}
	if len(s.allowOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   s.allowOrigins,
			AllowCredentials: true,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", ActorHeader},
		}).Handler)
	}

	r.Get("/health", healthHandler)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(actorMiddleware(s.defaultActor))

		r.Get("/workflow", s.getWorkflow)

		r.Route("/cases", func(r chi.Router) {
			r.Get("/", s.listCases)
			r.Post("/", s.openCase)
			r.Post("/from-incidents", s.openCaseFromIncidents)
			r.Route("/{caseID}", func(r chi.Router) {
				r.Get("/", s.getCase)
				r.Patch("/", s.updateCase)
				r.Post("/transition", s.transitionCase)
				r.Post("/close", s.closeCase)
				r.Get("/assignments", s.listCaseAssignments)
				r.Get("/notes", s.listNotes)
				r.Post("/notes", s.addNote)
			})
		})

		r.Route("/notes/{noteID}", func(r chi.Router) {
			r.Patch("/", s.updateNote)
			r.Delete("/", s.deleteNote)
		})

		r.Route("/incidents", func(r chi.Router) {
			r.Get("/", s.listIncidents)
			r.Post("/", s.registerIncident)
			r.Route("/{incidentID}", func(r chi.Router) {
				r.Get("/", s.getIncident)
				r.Post("/archive", s.archiveIncident)
				r.Get("/assignments", s.listIncidentAssignments)
				r.Post("/assign", s.assignIncident)
				r.Post("/reassign", s.reassignIncident)
				r.Post("/unassign", s.unassignIncident)
			})
		})

		r.Route("/executions", func(r chi.Router) {
			r.Get("/", s.listExecutions)
			r.Post("/", s.ingestExecution)
			r.Get("/{executionID}", s.getExecution)
		})

		r.Get("/audit", s.listAudit)
	})

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"actor", r.Header.Get(ActorHeader),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
