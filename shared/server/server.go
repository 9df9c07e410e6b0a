// Package server holds the HTTP plumbing shared by every service: the base
// gin engine and a serve loop that drains connections on shutdown.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/eaglebank/banking/shared/config"
	"github.com/eaglebank/banking/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const shutdownTimeout = 15 * time.Second

// NewRouter returns an engine with recovery, request logging, tracing and
// rate limiting installed, and a /health route.
func NewRouter(serviceName string, rateLimit config.RateLimit) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.LoggingMiddleware(),
		otelgin.Middleware(serviceName),
		middleware.RateLimitMiddleware(rateLimit),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})

	return router
}

// Run serves handler on port until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, port string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logrus.WithField("port", port).Info("server started")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logrus.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
