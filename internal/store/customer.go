package store

import (
	"context"
	"database/sql"
	"time"
)

// Customer is a tenant of the control plane, identified by its wallet
// address. Balances are held in integer USD cents throughout the store
// package — never float64 — per §3's accounting rule.
type Customer struct {
	ID                        string
	WalletAddress             string
	BalanceCents              int64
	SpendingLimitCents        int64
	PaidOnce                  bool
	EscrowContractID          sql.NullString
	CurrentPeriodStart        sql.NullTime
	CurrentPeriodChargedCents int64
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
	DeletedAt                 sql.NullTime
}

// CreateCustomer inserts a new customer row.
func CreateCustomer(ctx context.Context, q Queryer, c *Customer) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO customers (id, wallet_address, balance_cents, spending_limit_cents, paid_once, escrow_contract_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.WalletAddress, c.BalanceCents, c.SpendingLimitCents, c.PaidOnce, c.EscrowContractID)
	return err
}

// GetCustomer fetches a customer by id. Soft-deleted rows are excluded.
func GetCustomer(ctx context.Context, q Queryer, id string) (*Customer, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, wallet_address, balance_cents, spending_limit_cents, paid_once,
		       escrow_contract_id, current_period_start, current_period_charged_cents,
		       created_at, updated_at, deleted_at
		FROM customers WHERE id = $1 AND deleted_at IS NULL
	`, id)
	return scanCustomer(row)
}

// GetCustomerByWallet fetches a customer by its wallet address.
func GetCustomerByWallet(ctx context.Context, q Queryer, wallet string) (*Customer, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, wallet_address, balance_cents, spending_limit_cents, paid_once,
		       escrow_contract_id, current_period_start, current_period_charged_cents,
		       created_at, updated_at, deleted_at
		FROM customers WHERE wallet_address = $1 AND deleted_at IS NULL
	`, wallet)
	return scanCustomer(row)
}

// GetCustomerForUpdate locks the customer row FOR UPDATE inside tx, in
// addition to whatever advisory lock the caller already holds via
// LockCustomer. Repository writers call this rather than GetCustomer
// when the result feeds a subsequent UPDATE in the same transaction.
func GetCustomerForUpdate(ctx context.Context, tx *sql.Tx, id string) (*Customer, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, wallet_address, balance_cents, spending_limit_cents, paid_once,
		       escrow_contract_id, current_period_start, current_period_charged_cents,
		       created_at, updated_at, deleted_at
		FROM customers WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, id)
	return scanCustomer(row)
}

func scanCustomer(row *sql.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.WalletAddress, &c.BalanceCents, &c.SpendingLimitCents, &c.PaidOnce,
		&c.EscrowContractID, &c.CurrentPeriodStart, &c.CurrentPeriodChargedCents,
		&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCustomerBalance sets the customer's balance and spending state in
// one statement, used by the billing engine after a charge or credit.
func UpdateCustomerBalance(ctx context.Context, q Queryer, id string, balanceCents, periodChargedCents int64, periodStart sql.NullTime) error {
	_, err := q.ExecContext(ctx, `
		UPDATE customers
		SET balance_cents = $2, current_period_charged_cents = $3, current_period_start = $4, updated_at = now()
		WHERE id = $1
	`, id, balanceCents, periodChargedCents, periodStart)
	return err
}

// MarkCustomerPaidOnce flips the paid_once flag, which gates whether an
// unpaid cancellation deletes the service immediately (§4.5.2).
func MarkCustomerPaidOnce(ctx context.Context, q Queryer, id string) error {
	_, err := q.ExecContext(ctx, `UPDATE customers SET paid_once = TRUE, updated_at = now() WHERE id = $1`, id)
	return err
}
