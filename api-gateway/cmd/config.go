package main

import (
	"time"

	"github.com/eaglebank/banking/shared/config"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const serviceName = "api-gateway"

type Config struct {
	Port                  string        `envconfig:"PORT" default:"8080"`
	AccountServiceURL     string        `envconfig:"ACCOUNT_SERVICE_URL" default:"http://localhost:50051"`
	TransactionServiceURL string        `envconfig:"TRANSACTION_SERVICE_URL" default:"http://localhost:50052"`
	UpstreamTimeout       time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"30s"`

	config.Log
	config.RateLimit
	config.Tracing
	config.Auth
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, is.Port),
		validation.Field(&c.AccountServiceURL, validation.Required, is.URL),
		validation.Field(&c.TransactionServiceURL, validation.Required, is.URL),
		validation.Field(&c.UpstreamTimeout, validation.Min(time.Second)),
	)
	if err != nil {
		return err
	}
	return validation.Errors{
		"log":        c.Log.Validate(),
		"rate_limit": c.RateLimit.Validate(),
	}.Filter()
}

func loadConfig() (*Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
