package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eaglebank/banking/account-service/internal/handler"
	"github.com/eaglebank/banking/shared/logging"
	sharedredis "github.com/eaglebank/banking/shared/redis"
	"github.com/eaglebank/banking/shared/server"
	"github.com/eaglebank/banking/shared/tracing"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type app struct {
	cfg    *Config
	inject Injector
}

func preRun(a *app) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := logging.Setup(cfg.Log); err != nil {
			return err
		}
		inject, err := BootstrapServices(cfg)
		if err != nil {
			return fmt.Errorf("failed to wire services: %w", err)
		}
		a.cfg = cfg
		a.inject = inject
		return nil
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "account-service",
		Short:         "Owns Eagle Bank accounts and their balances",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentPreRunE = preRun(a)

	rootCmd.AddCommand(serveCommand(a))

	return rootCmd
}

func newRouter(cfg *Config, h *handler.AccountHandler) *gin.Engine {
	router := server.NewRouter(serviceName, cfg.RateLimit)
	h.Register(router)
	return router
}

func serveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the accounts HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := tracing.Setup(ctx, serviceName, a.cfg.Tracing)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					logrus.WithError(err).Warn("failed to flush traces")
				}
			}()

			return a.inject(func(db *sql.DB, client *sharedredis.Client, h *handler.AccountHandler) error {
				defer db.Close()
				defer client.Close()
				return server.Run(ctx, a.cfg.Port, newRouter(a.cfg, h))
			})
		},
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("account-service failed")
		os.Exit(1)
	}
}
