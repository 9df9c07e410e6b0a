package models

// Outcome classifies how a transfer ended.
type Outcome string

const (
	OutcomeApproved       Outcome = "approved"
	OutcomeInvalidRequest Outcome = "invalid_request"
	OutcomeApprovalFailed Outcome = "approval_failed"
	// OutcomeCompensated: the receiver credit failed and the sender was restored.
	OutcomeCompensated Outcome = "compensated"
	// OutcomeReconciliationRequired: the receiver credit failed and restoring
	// the sender failed too. The sender stays debited until repaired by hand.
	OutcomeReconciliationRequired Outcome = "reconciliation_required"
	// OutcomeReceiptMissing: money moved but the ledger entry was not written.
	OutcomeReceiptMissing Outcome = "receipt_missing"
)

// TransferResult is the answer to every transfer request.
type TransferResult struct {
	Approved      bool    `json:"approved"`
	Message       string  `json:"message"`
	Outcome       Outcome `json:"outcome"`
	TransactionID string  `json:"transaction_id,omitempty"`
}
