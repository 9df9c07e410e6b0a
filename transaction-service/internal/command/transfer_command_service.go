package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/eaglebank/banking/shared/cqrs"
	"github.com/eaglebank/banking/shared/events"
	"github.com/eaglebank/banking/shared/logging"
	"github.com/eaglebank/banking/shared/models"
	"github.com/eaglebank/banking/shared/utils"
	"github.com/eaglebank/banking/transaction-service/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Messages returned to callers.
const (
	MsgSuccess               = "Transaction is Successful."
	MsgReceiptMissing        = "Transaction is Successful, but the receipt could not be recorded."
	MsgSenderNotFound        = "Sender Account Not Found."
	MsgReceiverNotFound      = "Receiver Account Not Found."
	MsgSenderUnavailable     = "Sender account lookup failed: accounts service unavailable."
	MsgReceiverUnavailable   = "Receiver account lookup failed: accounts service unavailable."
	MsgSameAccount           = "Sender and receiver must be different accounts."
	MsgInsufficientBalance   = "Insufficient Balance"
	MsgSenderUpdateFailed    = "Failed to update sender balance."
	MsgReceiverUpdateFailed  = "Failed to update receiver balance."
	MsgAccountBusy           = "Account is busy with another transfer, retry later."
	MsgTransferNotStarted    = "Transfer could not be started, retry later."
	MsgAmountMustBePositive  = "Amount must be greater than zero."
	MsgAmountTooPrecise      = "Amount supports at most 4 decimal places."
	MsgMissingAccountNumbers = "Sender and receiver account numbers are required."
	MsgMissingEmails         = "Sender and receiver emails are required."
)

const (
	maxAmountDecimalPlaces    = 4
	defaultWriteTimeout       = 10 * time.Second
	defaultCompensateAttempts = 3
	defaultRecordTimeout      = 5 * time.Second
)

// ErrInvalidRequest is returned for requests rejected before any remote call.
var ErrInvalidRequest = errors.New("invalid transfer request")

// AccountAccessor reads and writes accounts owned by the account service.
type AccountAccessor interface {
	GetByAccountNumber(ctx context.Context, accountNumber string) (*models.AccountView, error)
	GetByEmail(ctx context.Context, email, accountType string) (*models.AccountView, error)
	ApplyBalance(ctx context.Context, accountNumber string, newBalance decimal.Decimal, expected *decimal.Decimal) error
}

// Ledger records completed transfers.
type Ledger interface {
	Append(ctx context.Context, sender, receiver string, amount decimal.Decimal, reason string) (*models.LedgerEntry, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// ReconciliationRecorder stores a reconciliation directly when the event
// stream is unavailable.
type ReconciliationRecorder interface {
	Record(ctx context.Context, rec *models.Reconciliation) error
}

// Locker takes exclusive locks on a set of keys.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (func(), error)
}

type TransferOptions struct {
	// ConditionalUpdates sends the balance read before the transfer along
	// with every update so the account service can refuse stale writes.
	ConditionalUpdates bool
	// WriteTimeout bounds the whole debit, credit and compensation phase.
	WriteTimeout time.Duration
	// CompensateAttempts is how often restoring the sender is tried.
	CompensateAttempts int
	// RecordTimeout bounds each write made after the balances have moved:
	// the ledger entry, events and reconciliation records.
	RecordTimeout time.Duration
}

// TransferCommandService moves money between two accounts held by the account
// service. Without a shared transaction it debits the sender, credits the
// receiver, and restores the sender when the credit fails.
type TransferCommandService struct {
	accounts       AccountAccessor
	ledger         Ledger
	locker         Locker
	publisher      EventPublisher
	reconciliation ReconciliationRecorder
	opts           TransferOptions
	tracer         trace.Tracer
}

func NewTransferCommandService(
	accounts AccountAccessor,
	ledger Ledger,
	locker Locker,
	publisher EventPublisher,
	reconciliation ReconciliationRecorder,
	opts TransferOptions,
) *TransferCommandService {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.CompensateAttempts <= 0 {
		opts.CompensateAttempts = defaultCompensateAttempts
	}
	if opts.RecordTimeout <= 0 {
		opts.RecordTimeout = defaultRecordTimeout
	}
	return &TransferCommandService{
		accounts:       accounts,
		ledger:         ledger,
		locker:         locker,
		publisher:      publisher,
		reconciliation: reconciliation,
		opts:           opts,
		tracer:         otel.Tracer("eaglebank.transaction-service.transfer"),
	}
}

// transfer is the state of one orchestration.
type transfer struct {
	id       string
	amount   decimal.Decimal
	reason   string
	sender   *models.AccountView
	receiver *models.AccountView
	log      *logrus.Entry
}

// Transfer moves cmd.Amount between two accounts identified by number. The
// error is non-nil only for malformed requests; every other outcome is
// described by the result.
func (s *TransferCommandService) Transfer(ctx context.Context, cmd cqrs.TransferCommand) (*models.TransferResult, error) {
	if cmd.SenderAccountNumber == "" || cmd.ReceiverAccountNumber == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, MsgMissingAccountNumbers)
	}
	if err := validateAmount(cmd.Amount); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "Transfer")
	defer span.End()

	result := s.run(ctx, utils.GenerateID("tr"), cmd)
	annotate(span, result)
	return result, nil
}

// TransferByAlias resolves both email aliases to account numbers and then
// transfers exactly like Transfer.
func (s *TransferCommandService) TransferByAlias(ctx context.Context, cmd cqrs.AliasTransferCommand) (*models.TransferResult, error) {
	if cmd.SenderEmail == "" || cmd.ReceiverEmail == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, MsgMissingEmails)
	}
	if err := validateAmount(cmd.Amount); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "TransferByAlias")
	defer span.End()

	transferID := utils.GenerateID("tr")
	log := logging.FromContext(ctx).WithField("transfer_id", transferID)

	sender, receiver, failure := s.resolve(ctx, log,
		func(ctx context.Context) (*models.AccountView, error) {
			return s.accounts.GetByEmail(ctx, cmd.SenderEmail, cmd.SenderAccountType)
		},
		func(ctx context.Context) (*models.AccountView, error) {
			return s.accounts.GetByEmail(ctx, cmd.ReceiverEmail, cmd.ReceiverAccountType)
		},
	)
	if failure != nil {
		s.publish(ctx, log, events.TransferFailed, events.TransferFailedEvent{
			TransferID:    transferID,
			SenderEmail:   cmd.SenderEmail,
			ReceiverEmail: cmd.ReceiverEmail,
			Amount:        cmd.Amount,
			Outcome:       string(failure.Outcome),
			Message:       failure.Message,
		})
		annotate(span, failure)
		return failure, nil
	}

	result := s.run(ctx, transferID, cqrs.TransferCommand{
		SenderAccountNumber:   sender.AccountNumber,
		ReceiverAccountNumber: receiver.AccountNumber,
		Amount:                cmd.Amount,
		Reason:                cmd.Reason,
	})
	annotate(span, result)
	return result, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, MsgAmountMustBePositive)
	}
	if amount.Exponent() < -maxAmountDecimalPlaces && !amount.Equal(amount.Truncate(maxAmountDecimalPlaces)) {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, MsgAmountTooPrecise)
	}
	return nil
}

// run locks both accounts and executes the transfer protocol.
func (s *TransferCommandService) run(ctx context.Context, transferID string, cmd cqrs.TransferCommand) *models.TransferResult {
	t := &transfer{
		id:     transferID,
		amount: cmd.Amount,
		reason: cmd.Reason,
		log: logging.FromContext(ctx).WithFields(logrus.Fields{
			"transfer_id": transferID,
			"sender":      cmd.SenderAccountNumber,
			"receiver":    cmd.ReceiverAccountNumber,
			"amount":      cmd.Amount.String(),
		}),
	}

	if cmd.SenderAccountNumber == cmd.ReceiverAccountNumber {
		return s.fail(ctx, t, cmd, models.OutcomeApprovalFailed, MsgSameAccount)
	}

	release, err := s.locker.Acquire(ctx,
		accountLockKey(cmd.SenderAccountNumber),
		accountLockKey(cmd.ReceiverAccountNumber),
	)
	if err != nil {
		t.log.WithError(err).Warn("could not lock accounts")
		if errors.Is(err, ErrLockNotAcquired) {
			return s.fail(ctx, t, cmd, models.OutcomeApprovalFailed, MsgAccountBusy)
		}
		return s.fail(ctx, t, cmd, models.OutcomeApprovalFailed, MsgTransferNotStarted)
	}
	defer release()

	// Steps 1-3 may be abandoned freely; nothing has changed yet.
	sender, receiver, failure := s.resolve(ctx, t.log,
		func(ctx context.Context) (*models.AccountView, error) {
			return s.accounts.GetByAccountNumber(ctx, cmd.SenderAccountNumber)
		},
		func(ctx context.Context) (*models.AccountView, error) {
			return s.accounts.GetByAccountNumber(ctx, cmd.ReceiverAccountNumber)
		},
	)
	if failure != nil {
		s.publishFailed(ctx, t, cmd, failure)
		return failure
	}
	t.sender, t.receiver = sender, receiver

	if sender.AccountNumber == receiver.AccountNumber {
		return s.fail(ctx, t, cmd, models.OutcomeApprovalFailed, MsgSameAccount)
	}
	if sender.Balance.LessThan(t.amount) {
		t.log.WithField("balance", sender.Balance.String()).Info("insufficient balance")
		return s.fail(ctx, t, cmd, models.OutcomeApprovalFailed, MsgInsufficientBalance)
	}
	if ctx.Err() != nil {
		return s.fail(ctx, t, cmd, models.OutcomeApprovalFailed, MsgTransferNotStarted)
	}

	// From the debit on the transfer must finish, whatever the caller does.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.WriteTimeout)
	defer cancel()
	return s.move(wctx, t, cmd)
}

type lookupFunc func(ctx context.Context) (*models.AccountView, error)

// resolve looks up sender and receiver concurrently. A non-nil result means
// the transfer cannot proceed.
func (s *TransferCommandService) resolve(ctx context.Context, log *logrus.Entry, lookupSender, lookupReceiver lookupFunc) (*models.AccountView, *models.AccountView, *models.TransferResult) {
	ctx, span := s.tracer.Start(ctx, "ResolveAccounts")
	defer span.End()

	var (
		sender, receiver       *models.AccountView
		senderErr, receiverErr error
	)
	// Both lookups always run to completion so that the sender's failure is
	// reported first regardless of timing.
	var g errgroup.Group
	g.Go(func() error {
		sender, senderErr = lookupSender(ctx)
		return nil
	})
	g.Go(func() error {
		receiver, receiverErr = lookupReceiver(ctx)
		return nil
	})
	_ = g.Wait()

	if senderErr != nil {
		log.WithError(senderErr).Info("sender lookup failed")
		span.RecordError(senderErr)
		return nil, nil, failed(lookupMessage(senderErr, MsgSenderNotFound, MsgSenderUnavailable))
	}
	if receiverErr != nil {
		log.WithError(receiverErr).Info("receiver lookup failed")
		span.RecordError(receiverErr)
		return nil, nil, failed(lookupMessage(receiverErr, MsgReceiverNotFound, MsgReceiverUnavailable))
	}
	return sender, receiver, nil
}

func lookupMessage(err error, notFound, unavailable string) string {
	if errors.Is(err, repository.ErrAccountNotFound) {
		return notFound
	}
	return unavailable
}

// move applies the debit, the credit and, if needed, the compensation. ctx
// is detached from the caller.
func (s *TransferCommandService) move(ctx context.Context, t *transfer, cmd cqrs.TransferCommand) *models.TransferResult {
	originalSender := t.sender.Balance
	newSender := originalSender.Sub(t.amount)
	newReceiver := t.receiver.Balance.Add(t.amount)

	if err := s.apply(ctx, "DebitSender", t.sender.AccountNumber, newSender, originalSender); err != nil {
		t.log.WithError(err).Warn("sender debit failed, nothing changed")
		return s.fail(ctx, t, cmd, models.OutcomeApprovalFailed, MsgSenderUpdateFailed)
	}

	if err := s.apply(ctx, "CreditReceiver", t.receiver.AccountNumber, newReceiver, t.receiver.Balance); err != nil {
		t.log.WithError(err).Warn("receiver credit failed, restoring sender")
		return s.compensate(ctx, t, cmd, originalSender, newSender, err)
	}

	rctx, cancel := s.followUp(ctx)
	entry, err := s.appendLedger(rctx, t)
	cancel()
	if err != nil {
		t.log.WithError(err).Error("transfer completed but the ledger entry could not be written")
		return &models.TransferResult{
			Approved: true,
			Message:  MsgReceiptMissing,
			Outcome:  models.OutcomeReceiptMissing,
		}
	}

	t.log.WithField("transaction_id", entry.ID).Info("transfer completed")
	s.publish(ctx, t.log, events.TransferCompleted, events.TransferCompletedEvent{
		TransactionID:         entry.ID,
		SenderAccountNumber:   entry.SenderAccountNumber,
		ReceiverAccountNumber: entry.ReceiverAccountNumber,
		Amount:                entry.Amount,
		Reason:                entry.Reason,
	})
	return &models.TransferResult{
		Approved:      true,
		Message:       MsgSuccess,
		Outcome:       models.OutcomeApproved,
		TransactionID: entry.ID,
	}
}

func (s *TransferCommandService) apply(ctx context.Context, step, accountNumber string, newBalance, expected decimal.Decimal) error {
	ctx, span := s.tracer.Start(ctx, step, trace.WithAttributes(attribute.String("account_number", accountNumber)))
	defer span.End()

	err := s.accounts.ApplyBalance(ctx, accountNumber, newBalance, s.expected(expected))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TransferCommandService) expected(balance decimal.Decimal) *decimal.Decimal {
	if !s.opts.ConditionalUpdates {
		return nil
	}
	return &balance
}

// compensate puts the sender's original balance back. Retrying is safe
// because the write sets an absolute value.
func (s *TransferCommandService) compensate(ctx context.Context, t *transfer, cmd cqrs.TransferCommand, original, debited decimal.Decimal, creditErr error) *models.TransferResult {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.Reset()

	// An attempt that timed out may still have been applied, so a later
	// conditional write can be refused even though the sender is restored.
	var uncertain bool
	err := backoff.Retry(func() error {
		err := s.apply(ctx, "CompensateSender", t.sender.AccountNumber, original, debited)
		if errors.Is(err, repository.ErrRemoteUnavailable) {
			uncertain = true
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.CompensateAttempts-1)), ctx))
	if err != nil && uncertain && errors.Is(err, repository.ErrBalanceRejected) && s.restored(ctx, t, original) {
		err = nil
	}

	if err == nil {
		t.log.Warn("receiver credit failed, sender balance restored")
		return s.fail(ctx, t, cmd, models.OutcomeCompensated, MsgReceiverUpdateFailed)
	}

	detail := fmt.Sprintf("credit failed: %v; restoring sender failed: %v", creditErr, err)
	t.log.WithError(err).WithFields(logrus.Fields{
		"reconciliation_required": true,
		"sender_original_balance": original.String(),
		"sender_debited_balance":  debited.String(),
	}).Error("sender left debited without a matching credit")

	rec := events.ReconciliationRequiredEvent{
		TransferID:            t.id,
		SenderAccountNumber:   t.sender.AccountNumber,
		ReceiverAccountNumber: t.receiver.AccountNumber,
		Amount:                t.amount,
		SenderOriginalBalance: original,
		SenderDebitedBalance:  debited,
		Detail:                detail,
	}
	s.requireReconciliation(ctx, t.log, rec)
	return s.fail(ctx, t, cmd, models.OutcomeReconciliationRequired, MsgReceiverUpdateFailed)
}

// restored reads the sender back and reports whether it holds original.
func (s *TransferCommandService) restored(ctx context.Context, t *transfer, original decimal.Decimal) bool {
	rctx, cancel := s.followUp(ctx)
	defer cancel()

	current, err := s.accounts.GetByAccountNumber(rctx, t.sender.AccountNumber)
	if err != nil {
		t.log.WithError(err).Warn("could not read sender back after refused restore")
		return false
	}
	return current.Balance.Equal(original)
}

// requireReconciliation publishes rec, falling back to the store when the
// stream is down. Each write gets its own deadline.
func (s *TransferCommandService) requireReconciliation(ctx context.Context, log *logrus.Entry, rec events.ReconciliationRequiredEvent) {
	pctx, cancel := s.followUp(ctx)
	err := s.publisher.Publish(pctx, events.TransferEventsStream, events.ReconciliationRequired, rec)
	cancel()
	if err == nil {
		return
	}
	log.WithError(err).Error("failed to publish reconciliation event, recording it directly")

	rctx, cancel := s.followUp(ctx)
	defer cancel()
	if err := s.reconciliation.Record(rctx, ReconciliationFromEvent(rec)); err != nil {
		log.WithError(err).WithField("reconciliation_required", true).Error("failed to record reconciliation")
	}
}

// followUp detaches ctx from the caller and from the write phase deadline.
func (s *TransferCommandService) followUp(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.opts.RecordTimeout)
}

func (s *TransferCommandService) appendLedger(ctx context.Context, t *transfer) (*models.LedgerEntry, error) {
	ctx, span := s.tracer.Start(ctx, "AppendLedger")
	defer span.End()

	entry, err := s.ledger.Append(ctx, t.sender.AccountNumber, t.receiver.AccountNumber, t.amount, t.reason)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("transaction_id", entry.ID))
	return entry, nil
}

func (s *TransferCommandService) fail(ctx context.Context, t *transfer, cmd cqrs.TransferCommand, outcome models.Outcome, message string) *models.TransferResult {
	result := &models.TransferResult{Approved: false, Message: message, Outcome: outcome}
	s.publishFailed(ctx, t, cmd, result)
	return result
}

func (s *TransferCommandService) publishFailed(ctx context.Context, t *transfer, cmd cqrs.TransferCommand, result *models.TransferResult) {
	s.publish(ctx, t.log, events.TransferFailed, events.TransferFailedEvent{
		TransferID:            t.id,
		SenderAccountNumber:   cmd.SenderAccountNumber,
		ReceiverAccountNumber: cmd.ReceiverAccountNumber,
		Amount:                cmd.Amount,
		Outcome:               string(result.Outcome),
		Message:               result.Message,
	})
}

// publish is best effort.
func (s *TransferCommandService) publish(ctx context.Context, log *logrus.Entry, eventType string, data any) {
	ctx, cancel := s.followUp(ctx)
	defer cancel()
	if err := s.publisher.Publish(ctx, events.TransferEventsStream, eventType, data); err != nil {
		log.WithError(err).Warnf("failed to publish %s event", eventType)
	}
}

func failed(message string) *models.TransferResult {
	return &models.TransferResult{Approved: false, Message: message, Outcome: models.OutcomeApprovalFailed}
}

func annotate(span trace.Span, result *models.TransferResult) {
	span.SetAttributes(
		attribute.Bool("transfer.approved", result.Approved),
		attribute.String("transfer.outcome", string(result.Outcome)),
	)
	if !result.Approved {
		span.SetStatus(codes.Error, result.Message)
	}
}

// ReconciliationFromEvent converts the event payload to the stored record.
func ReconciliationFromEvent(e events.ReconciliationRequiredEvent) *models.Reconciliation {
	return &models.Reconciliation{
		TransferID:            e.TransferID,
		SenderAccountNumber:   e.SenderAccountNumber,
		ReceiverAccountNumber: e.ReceiverAccountNumber,
		Amount:                e.Amount,
		SenderOriginalBalance: e.SenderOriginalBalance,
		SenderDebitedBalance:  e.SenderDebitedBalance,
		Detail:                e.Detail,
	}
}
