// Package api exposes the engine over HTTP: token-guarded lifecycle
// transitions for the marketplace front-end, batch job triggers for
// operators, health and metrics.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"groupage/service"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the engine's HTTP surface.
type Server struct {
	router      *mux.Router
	transitions *service.TransitionService
	sweeper     *service.SweeperService
	migrator    *service.MigratorService
	auditor     *service.AuditorService
	logger      *zap.SugaredLogger
	srv         *http.Server

	// now is injectable for handler tests
	now func() time.Time
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(
	transitions *service.TransitionService,
	sweeper *service.SweeperService,
	migrator *service.MigratorService,
	auditor *service.AuditorService,
	logger *zap.SugaredLogger,
) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		transitions: transitions,
		sweeper:     sweeper,
		migrator:    migrator,
		auditor:     auditor,
		logger:      logger,
		now:         time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/announcements/{reference}/validate", s.validateAnnouncement).Methods("POST")
	s.router.HandleFunc("/api/announcements/{reference}", s.deleteAnnouncement).Methods("DELETE")
	s.router.HandleFunc("/api/announcements/{reference}", s.editAnnouncement).Methods("PATCH")

	s.router.HandleFunc("/api/jobs/sweep", s.runSweep).Methods("POST")
	s.router.HandleFunc("/api/jobs/migrate", s.runMigration).Methods("POST")
	s.router.HandleFunc("/api/jobs/audit", s.runAudit).Methods("POST")

	s.router.HandleFunc("/healthz", s.health).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Router returns the underlying router, for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start begins serving on the given address.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Infow("HTTP server listening", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
