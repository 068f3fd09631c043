// Package monitoring exposes the broker's thin HTTP surface: liveness,
// readiness, and a Prometheus scrape endpoint, wired through
// go-chi/chi/v5.
package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether the broker is ready to serve traffic,
// e.g. storage has finished loading consumer offsets.
type ReadinessCheck func() error

// Server is the broker's monitoring HTTP server: /healthz, /readyz, and
// /metrics (serving the default Prometheus registry promauto registers
// against, so internal/metrics collectors show up here with no extra
// wiring).
type Server struct {
	httpServer *http.Server
	router     chi.Router
	logger     *zap.Logger
}

// New builds a monitoring server bound to addr. ready is polled on every
// /readyz request.
func New(addr string, ready ReadinessCheck, logger *zap.Logger) *Server {
	router := chi.NewRouter()
	s := &Server{router: router, logger: logger}

	router.Get("/healthz", s.handleHealthz)
	router.Get("/readyz", s.handleReadyz(ready))
	router.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the HTTP server in the background. Call Shutdown to stop it.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("monitoring server failed", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(ready ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		if err := ready(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
