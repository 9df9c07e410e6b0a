package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/eaglebank/banking/shared/events"
	sharedredis "github.com/eaglebank/banking/shared/redis"
	"github.com/eaglebank/banking/transaction-service/internal/command"
	"github.com/eaglebank/banking/transaction-service/internal/repository"
	"github.com/spf13/cobra"
)

const (
	reconciliationGroup = "reconciliation"
	// reclaimIdle hands events of a crashed worker to a live one.
	reclaimIdle = time.Minute
)

func consumerName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func reconcileCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Store reconciliation.required events as open reconciliations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.inject(func(db *sql.DB, client *sharedredis.Client, recs *repository.ReconciliationRepository) error {
				defer db.Close()
				defer client.Close()

				sub := events.NewSubscriber(client.Client, events.SubscriberConfig{
					Group:       reconciliationGroup,
					Consumer:    consumerName(),
					Stream:      events.TransferEventsStream,
					Handler:     command.NewReconciliationHandler(recs),
					ReclaimIdle: reclaimIdle,
				})
				if err := sub.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}
}

func reconciliationsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconciliations",
		Short: "List transfers whose sender is still debited",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.inject(func(db *sql.DB, recs *repository.ReconciliationRepository) error {
				defer db.Close()
				return listReconciliations(cmd.Context(), cmd.OutOrStdout(), recs)
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "resolve <transfer-id>",
		Short: "Mark a reconciliation as repaired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.inject(func(db *sql.DB, recs *repository.ReconciliationRepository) error {
				defer db.Close()
				if err := recs.Resolve(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "resolved %s\n", args[0])
				return nil
			})
		},
	})

	return cmd
}

func listReconciliations(ctx context.Context, out io.Writer, recs *repository.ReconciliationRepository) error {
	open, err := recs.ListOpen(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TRANSFER\tSENDER\tRECEIVER\tAMOUNT\tORIGINAL\tDEBITED\tCREATED")
	for _, rec := range open {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.TransferID, rec.SenderAccountNumber, rec.ReceiverAccountNumber,
			rec.Amount.String(), rec.SenderOriginalBalance.String(), rec.SenderDebitedBalance.String(),
			rec.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
