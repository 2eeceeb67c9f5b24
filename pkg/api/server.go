// Package api serves the operational HTTP surface: health and status.
// The dashboard read API lives elsewhere and is not part of this process.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/triagesec/triagebot/pkg/database"
	"github.com/triagesec/triagebot/pkg/version"
)

// Coordinator is the slice of the bot the status endpoint reports on.
type Coordinator interface {
	ActiveSessions() int
	RosterSize() int
}

// Server wraps the gin engine serving /health and /status.
type Server struct {
	db     *database.Client
	coord  Coordinator
	engine *gin.Engine
	http   *http.Server
	logger *slog.Logger
}

// NewServer builds the HTTP server on the given port.
func NewServer(db *database.Client, coord Coordinator, port int) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		db:     db,
		coord:  coord,
		engine: engine,
		logger: slog.Default().With("component", "api"),
	}
	engine.GET("/health", s.Health)
	engine.GET("/status", s.Status)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Health reports database connectivity. Unhealthy returns 503.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbHealth,
	})
}

// Status reports version and coordinator gauges.
func (s *Server) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":         version.Full(),
		"active_sessions": s.coord.ActiveSessions(),
		"roster_size":     s.coord.RosterSize(),
	})
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}
