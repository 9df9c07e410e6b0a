package command

import (
	"context"

	"github.com/eaglebank/banking/shared/events"
	"github.com/eaglebank/banking/shared/logging"
)

// NewReconciliationHandler stores every reconciliation.required event it
// receives. Other transfer events are acknowledged and ignored.
func NewReconciliationHandler(recorder ReconciliationRecorder) events.Handler {
	return func(ctx context.Context, event events.Event) error {
		if event.Type != events.ReconciliationRequired {
			return nil
		}

		var payload events.ReconciliationRequiredEvent
		if err := event.DecodeData(&payload); err != nil {
			return err
		}

		if err := recorder.Record(ctx, ReconciliationFromEvent(payload)); err != nil {
			return err
		}

		logging.FromContext(ctx).WithField("transfer_id", payload.TransferID).
			WithField("sender", payload.SenderAccountNumber).
			Warn("reconciliation recorded")
		return nil
	}
}
