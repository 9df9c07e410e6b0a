package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eaglebank/banking/shared/models"
)

var ErrReconciliationNotFound = errors.New("open reconciliation not found")

// ReconciliationRepository keeps transfers that left a sender debited without
// a matching credit, until someone repairs them.
type ReconciliationRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewReconciliationRepository(db *sql.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db, now: time.Now}
}

// Record stores rec once; recording the same transfer again is a no-op.
func (r *ReconciliationRepository) Record(ctx context.Context, rec *models.Reconciliation) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC().Truncate(time.Microsecond)
	}
	query := `
		INSERT INTO reconciliations (
			transfer_id, sender, receiver, amount,
			sender_original_balance, sender_debited_balance, detail, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (transfer_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.TransferID, rec.SenderAccountNumber, rec.ReceiverAccountNumber, rec.Amount,
		rec.SenderOriginalBalance, rec.SenderDebitedBalance, rec.Detail, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to record reconciliation: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}

// ListOpen returns unresolved reconciliations, oldest first.
func (r *ReconciliationRepository) ListOpen(ctx context.Context) ([]models.Reconciliation, error) {
	query := `
		SELECT transfer_id, sender, receiver, amount,
			sender_original_balance, sender_debited_balance, detail, created_at
		FROM reconciliations
		WHERE resolved_at IS NULL
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list reconciliations: %v", ErrPersistenceUnavailable, err)
	}
	defer rows.Close()

	recs := make([]models.Reconciliation, 0)
	for rows.Next() {
		var rec models.Reconciliation
		if err := rows.Scan(
			&rec.TransferID, &rec.SenderAccountNumber, &rec.ReceiverAccountNumber, &rec.Amount,
			&rec.SenderOriginalBalance, &rec.SenderDebitedBalance, &rec.Detail, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: failed to scan reconciliation: %v", ErrPersistenceUnavailable, err)
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to list reconciliations: %v", ErrPersistenceUnavailable, err)
	}
	return recs, nil
}

// Resolve marks an open reconciliation as repaired.
func (r *ReconciliationRepository) Resolve(ctx context.Context, transferID string) error {
	query := `
		UPDATE reconciliations
		SET resolved_at = $2
		WHERE transfer_id = $1 AND resolved_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, transferID, r.now().UTC().Truncate(time.Microsecond))
	if err != nil {
		return fmt.Errorf("%w: failed to resolve reconciliation: %v", ErrPersistenceUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to resolve reconciliation: %v", ErrPersistenceUnavailable, err)
	}
	if affected == 0 {
		return ErrReconciliationNotFound
	}
	return nil
}
