// Package config loads service configuration from the environment.
//
// Each service declares its own configuration struct, embedding the shared
// sections below so that every service reads REDIS_ADDR, LOG_LEVEL etc. the
// same way.
package config

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kelseyhightower/envconfig"
)

// Redis holds the connection settings for the shared Redis instance.
type Redis struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (r Redis) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Addr, validation.Required),
		validation.Field(&r.DB, validation.Min(0)),
	)
}

// Log controls the logrus root logger.
type Log struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

func (l Log) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("panic", "fatal", "error", "warn", "warning", "info", "debug", "trace")),
		validation.Field(&l.Format, validation.In("json", "text")),
	)
}

// RateLimit is disabled while RequestsPerSecond is zero.
type RateLimit struct {
	RequestsPerSecond float64       `envconfig:"RATE_LIMIT_RPS"`
	Burst             int           `envconfig:"RATE_LIMIT_BURST"`
	CleanupInterval   time.Duration `envconfig:"RATE_LIMIT_CLEANUP_INTERVAL" default:"3h"`
}

// Enabled reports whether requests should be limited at all.
func (r RateLimit) Enabled() bool {
	return r.RequestsPerSecond > 0
}

// EffectiveBurst falls back to twice the rate when no burst is configured.
func (r RateLimit) EffectiveBurst() int {
	if r.Burst > 0 {
		return r.Burst
	}
	burst := int(2 * r.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return burst
}

func (r RateLimit) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RequestsPerSecond, validation.Min(float64(0))),
		validation.Field(&r.Burst, validation.Min(0)),
	)
}

// Tracing switches the OpenTelemetry exporter on. The OTLP endpoint itself is
// read by the exporter from the standard OTEL_EXPORTER_OTLP_* variables.
type Tracing struct {
	Enabled bool `envconfig:"OTEL_ENABLED" default:"false"`
}

// Auth carries the HMAC secret used to verify bearer tokens. An empty secret
// leaves routes unauthenticated.
type Auth struct {
	JWTSecret string `envconfig:"JWT_SECRET"`
}

// Load fills spec from the environment and, when spec knows how to validate
// itself, validates it.
func Load(spec interface{}) error {
	if err := envconfig.Process("", spec); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	if v, ok := spec.(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return nil
}
