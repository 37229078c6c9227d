// Package server exposes the deployment pipeline over HTTP: health,
// per-project deployment history, and a trigger endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"shipway/internal/deployment"
	"shipway/internal/project"
	"shipway/internal/tracker"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 10 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// Request timeout for middleware
	RequestTimeout = 60 * time.Second

	// Trigger requests allowed per minute, per IP
	TriggerRateLimit = 6
)

// Deployer runs one deployment to completion. The command layer
// supplies the implementation so the server stays free of pipeline
// wiring.
type Deployer interface {
	Deploy(ctx context.Context, projectName, envName string, action deployment.Action, options map[string]bool) error
}

// Server is the HTTP trigger surface.
type Server struct {
	Registry *project.Registry
	Store    *tracker.Store
	Deployer Deployer
	Logger   *slog.Logger
	TestMode bool

	deployWg sync.WaitGroup // in-flight async deployments
}

// NewServer creates a new server instance.
func NewServer(registry *project.Registry, store *tracker.Store, deployer Deployer, logger *slog.Logger, testMode bool) *Server {
	return &Server{
		Registry: registry,
		Store:    store,
		Deployer: deployer,
		Logger:   logger,
		TestMode: testMode,
	}
}

// Router creates and configures the HTTP router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", req.Method,
					"path", req.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, req)
		})
	})

	r.Get("/health", s.HandleHealth)
	r.Get("/status/{projectName}", s.HandleStatus)

	if s.TestMode {
		r.Post("/deploy/{projectName}/{envName}", s.HandleDeploy)
	} else {
		r.With(NewRateLimitMiddleware(TriggerRateLimit, s.Logger)).
			Post("/deploy/{projectName}/{envName}", s.HandleDeploy)
	}

	return r
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.Logger.Info("Starting server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	return server.ListenAndServe()
}

// Wait blocks until all in-flight deployments have finished.
func (s *Server) Wait() {
	s.deployWg.Wait()
}
