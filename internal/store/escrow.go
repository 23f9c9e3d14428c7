package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/suiftly/sealctl/internal/enum"
)

// EscrowTransaction records one movement against a customer's on-chain
// escrow contract (§4.5.7). Spending-limit enforcement sums Charge rows
// over a rolling 28-day window, never a calendar month.
type EscrowTransaction struct {
	ID             string
	CustomerID     string
	Kind           enum.EscrowTxKind
	TxDigest       sql.NullString
	AmountUSDCents int64
	Success        bool
	CreatedAt      time.Time
}

func CreateEscrowTransaction(ctx context.Context, q Queryer, e *EscrowTransaction) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO escrow_transactions (id, customer_id, kind, tx_digest, amount_usd_cents, success)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.CustomerID, e.Kind, e.TxDigest, e.AmountUSDCents, e.Success)
	return err
}

// SumEscrowChargesSince returns the total of successful charge
// transactions for customerID with created_at >= since — the input to
// the 28-day rolling spending-limit check (§4.5.7).
func SumEscrowChargesSince(ctx context.Context, q Queryer, customerID string, since time.Time) (int64, error) {
	var total sql.NullInt64
	row := q.QueryRowContext(ctx, `
		SELECT SUM(amount_usd_cents) FROM escrow_transactions
		WHERE customer_id = $1 AND kind = $2 AND success = TRUE AND created_at >= $3
	`, customerID, enum.EscrowTxCharge, since)
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total.Int64, nil
}

func ListEscrowTransactionsByCustomer(ctx context.Context, q Queryer, customerID string) ([]*EscrowTransaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, customer_id, kind, tx_digest, amount_usd_cents, success, created_at
		FROM escrow_transactions WHERE customer_id = $1
		ORDER BY created_at DESC
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*EscrowTransaction
	for rows.Next() {
		var e EscrowTransaction
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.Kind, &e.TxDigest, &e.AmountUSDCents, &e.Success, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
