// Package server exposes the question catalog, learner sessions, the
// command terminal and step validation over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ormasoftchile/steplab/pkg/config"
)

// Server is the HTTP front of a Backend.
type Server struct {
	cfg     *config.Server
	backend *Backend
	logger  *slog.Logger
	engine  *gin.Engine
}

// New builds a Server and its routes. The backend is created from cfg.
func New(cfg *config.Server, logger *slog.Logger) (*Server, error) {
	b, err := NewBackend(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}
	return NewWithBackend(cfg, b), nil
}

// NewWithBackend builds a Server around an existing backend.
func NewWithBackend(cfg *config.Server, b *Backend) *Server {
	s := &Server{cfg: cfg, backend: b, logger: b.Logger}
	s.engine = s.routes()
	return s
}

// Backend returns the in-process backend behind the server.
func (s *Server) Backend() *Backend {
	return s.backend
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(s.logger))

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", requireJSON())
	api.GET("/questions", s.handleListQuestions)
	api.GET("/questions/:id", s.handleGetQuestion)
	api.POST("/session/create", s.handleSessionCreate)
	api.POST("/session/end", s.handleSessionEnd)
	api.POST("/terminal/execute", s.handleExecute)
	api.POST("/validate", s.handleValidate)

	if s.cfg.EnableAdmin {
		admin := api.Group("/admin")
		admin.GET("/questions", s.handleListQuestions)
		admin.POST("/questions", s.handleAdminCreate)
		admin.GET("/questions/:id", s.handleAdminGet)
		admin.PUT("/questions/:id", s.handleAdminUpdate)
		admin.DELETE("/questions/:id", s.handleAdminDelete)
	}
	return r
}

// Run serves until ctx is cancelled, reaping idle sessions alongside.
// On shutdown every remaining workspace is released.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "addr", s.cfg.Addr, "questions", s.backend.Catalog.Root())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return s.backend.Sessions.RunReaper(ctx, s.cfg.ReapInterval)
	})

	err := g.Wait()
	s.backend.Sessions.Shutdown()
	sessionsActive.Set(0)
	return err
}
