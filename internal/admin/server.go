// Package admin serves a small HTTP API for operators: health, stored
// conversation sessions and the device action log.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fiberline/opsbot/internal/models"
	"github.com/fiberline/opsbot/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ActionLister reads recent audit entries.
type ActionLister interface {
	Recent(ctx context.Context, action string, limit int) ([]models.ActionLog, error)
}

// StartOpts holds configuration for the admin server.
type StartOpts struct {
	Addr    string // listen address, e.g. ":8081"
	Store   session.Store
	Actions ActionLister // optional; /actions returns 404 without it
	Out     io.Writer
	Logger  *zap.Logger
}

// Start launches the admin HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("admin: store is required")
	}
	if opts.Addr == "" {
		return fmt.Errorf("admin: addr is required")
	}

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           NewHandler(opts.Store, opts.Actions, opts.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Admin API listening on %s\n", opts.Addr)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin: %w", err)
	}
	return nil
}

// NewHandler builds the gin engine with all admin routes.
func NewHandler(store session.Store, actions ActionLister, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	registerRoutes(router, store, actions)
	return router
}

// requestLogger logs each request at debug level.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("admin request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
