// Package api is the agent's local HTTP surface: push ingress, the page
// bridge, notification action callbacks and the call log.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/astro5star/callshell/internal/api/middleware"
	"github.com/astro5star/callshell/internal/bridge/pagews"
	"github.com/astro5star/callshell/internal/call"
	"github.com/astro5star/callshell/internal/database"
	"github.com/astro5star/callshell/internal/prompt"
	"github.com/astro5star/callshell/internal/push"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router  *chi.Mux
	ingress *push.Ingress
	manager *call.Manager
	prompts *prompt.Registry
	callLog database.CallLogRepository
	pageWS  *pagews.Handler
	auth    *pagews.Authenticator
	metrics prometheus.Gatherer
}

// NewServer creates the HTTP handler with all routes mounted. callLog and
// metrics may be nil; their routes then answer 404 / empty.
func NewServer(ingress *push.Ingress, manager *call.Manager, callLog database.CallLogRepository, pageWS *pagews.Handler, auth *pagews.Authenticator, metrics prometheus.Gatherer) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		ingress: ingress,
		manager: manager,
		prompts: prompt.NewRegistry(manager),
		callLog: callLog,
		pageWS:  pageWS,
		auth:    auth,
		metrics: metrics,
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/push", s.handlePush)

		r.Route("/bridge", func(r chi.Router) {
			r.Get("/token", s.handleBridgeToken)
			r.Get("/ws", s.pageWS.ServeHTTP)
		})

		r.Route("/calls", func(r chi.Router) {
			r.Get("/recent", s.handleRecentCalls)
			r.Route("/{callID}", func(r chi.Router) {
				r.Get("/state", s.handleCallState)
				r.Get("/prompt", s.handlePrompt)
				r.Post("/accept", s.handleAccept)
				r.Post("/reject", s.handleReject)
			})
		})
	})
}
