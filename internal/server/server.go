package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jobvine/sentinel/internal/api/middleware"
	"github.com/jobvine/sentinel/internal/api/routes"
	"github.com/jobvine/sentinel/internal/config"
	"github.com/jobvine/sentinel/internal/sentinel"
	"github.com/jobvine/sentinel/internal/services"
)

// Server wraps the HTTP engine and shared dependencies for easier testing.
type Server struct {
	Engine *gin.Engine
	cfg    config.Config
}

// New wires up the HTTP router: request plumbing first, then caller identity,
// then admission, so every route below sits behind the engine.
func New(svc *sentinel.Service, archive *services.ArchiveService, cfg config.Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	isDevelopment := cfg.Environment == "development"
	if isDevelopment {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Recovery(isDevelopment),
		middleware.SecurityHeaders(isDevelopment),
	)

	routes.Register(router, svc, archive, cfg)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	return &Server{Engine: router, cfg: cfg}
}

// Run starts the HTTP server with proper shutdown semantics.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", s.cfg.HTTPPort),
		Handler: s.Engine,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
