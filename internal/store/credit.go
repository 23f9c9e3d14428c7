package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/suiftly/sealctl/internal/enum"
)

// CustomerCredit is a standing credit balance applied against future
// invoices before any payment provider is charged (§4.5.4's provider
// chain always tries credit first).
type CustomerCredit struct {
	ID                      string
	CustomerID              string
	RemainingAmountUSDCents int64
	ExpiresAt               sql.NullTime
	SourceReason            enum.CreditSourceReason
	CreatedAt               time.Time
}

// InvoicePayment records one payment applied to a BillingRecord, from
// either a CustomerCredit or a payment provider charge.
type InvoicePayment struct {
	ID              string
	BillingRecordID string
	SourceType      enum.PaymentSourceType
	ReferenceID     sql.NullString
	AmountUSDCents  int64
	CreatedAt       time.Time
}

func CreateCustomerCredit(ctx context.Context, q Queryer, c *CustomerCredit) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO customer_credits (id, customer_id, remaining_amount_usd_cents, expires_at, source_reason)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.CustomerID, c.RemainingAmountUSDCents, c.ExpiresAt, c.SourceReason)
	return err
}

// ListSpendableCustomerCredits returns a customer's unexpired credits
// with remaining balance, oldest first (so the engine spends the oldest
// credit before it expires).
func ListSpendableCustomerCredits(ctx context.Context, tx *sql.Tx, customerID string, asOf time.Time) ([]*CustomerCredit, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, customer_id, remaining_amount_usd_cents, expires_at, source_reason, created_at
		FROM customer_credits
		WHERE customer_id = $1 AND remaining_amount_usd_cents > 0 AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at
		FOR UPDATE
	`, customerID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CustomerCredit
	for rows.Next() {
		var c CustomerCredit
		if err := rows.Scan(&c.ID, &c.CustomerID, &c.RemainingAmountUSDCents, &c.ExpiresAt, &c.SourceReason, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// DebitCustomerCredit reduces a credit's remaining balance by amountCents.
func DebitCustomerCredit(ctx context.Context, tx *sql.Tx, id string, amountCents int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE customer_credits SET remaining_amount_usd_cents = remaining_amount_usd_cents - $2 WHERE id = $1
	`, id, amountCents)
	return err
}

func CreateInvoicePayment(ctx context.Context, q Queryer, p *InvoicePayment) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO invoice_payments (id, billing_record_id, source_type, reference_id, amount_usd_cents)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.BillingRecordID, p.SourceType, p.ReferenceID, p.AmountUSDCents)
	return err
}

func ListInvoicePayments(ctx context.Context, q Queryer, billingRecordID string) ([]*InvoicePayment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, billing_record_id, source_type, reference_id, amount_usd_cents, created_at
		FROM invoice_payments WHERE billing_record_id = $1
		ORDER BY created_at
	`, billingRecordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*InvoicePayment
	for rows.Next() {
		var p InvoicePayment
		if err := rows.Scan(&p.ID, &p.BillingRecordID, &p.SourceType, &p.ReferenceID, &p.AmountUSDCents, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
