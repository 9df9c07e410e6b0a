// Package logging configures logrus for the services and carries
// request-scoped fields through context.Context.
package logging

import (
	"context"
	"log"

	"github.com/eaglebank/banking/shared/config"
	"github.com/sirupsen/logrus"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// RequestIDHeader is read and echoed by the HTTP middleware and forwarded on
// outgoing calls between services.
const RequestIDHeader = "X-Request-ID"

// Setup configures the standard logrus logger and routes the stdlib logger
// through it, so stray log.Printf calls end up in the same stream.
func Setup(cfg config.Log) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if cfg.Format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	log.SetFlags(0)
	log.SetOutput(logrus.StandardLogger().Writer())
	return nil
}

// ContextWithRequestID returns a copy of ctx carrying requestID.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDValue returns the request id stored in ctx, or "".
func RequestIDValue(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	val, _ := ctx.Value(requestIDKey).(string)
	return val
}

// FromContext returns a log entry tagged with the request id found in ctx.
func FromContext(ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(logrus.StandardLogger())
	if requestID := RequestIDValue(ctx); requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}
	return entry
}
