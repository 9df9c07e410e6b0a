package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/eaglebank/banking/shared/logging"
	"github.com/eaglebank/banking/shared/server"
	"github.com/eaglebank/banking/shared/tracing"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type app struct {
	cfg *Config
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
		a.cfg = cfg
		return nil
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "api-gateway",
		Short:         "Public entry point of the Eagle Bank services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentPreRunE = preRun(a)

	rootCmd.AddCommand(serveCommand(a))

	return rootCmd
}

func serveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
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

			router, err := newRouter(a.cfg)
			if err != nil {
				return err
			}
			return server.Run(ctx, a.cfg.Port, router)
		},
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("api-gateway failed")
		os.Exit(1)
	}
}
