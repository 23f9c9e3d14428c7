package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/suiftly/sealctl/internal/enum"
)

// BillingRecord is one invoice (§4.5.3).
type BillingRecord struct {
	ID                 string
	CustomerID         string
	Status             enum.InvoiceStatus
	AmountUSDCents     int64
	AmountPaidUSDCents int64
	BillingPeriodStart time.Time
	DueDate            sql.NullTime
	PaymentActionURL   sql.NullString
	TxDigest           sql.NullString
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// InvoiceLineItem is one line of a BillingRecord.
type InvoiceLineItem struct {
	ID                string
	BillingRecordID   string
	ItemType          enum.LineItemType
	ServiceType       sql.NullString
	Quantity          float64
	UnitPriceUSDCents int64
	AmountUSDCents    int64
	CreditMonth       sql.NullString
	CreatedAt         time.Time
}

func CreateBillingRecord(ctx context.Context, q Queryer, b *BillingRecord) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO billing_records (id, customer_id, status, amount_usd_cents, amount_paid_usd_cents, billing_period_start, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.CustomerID, b.Status, b.AmountUSDCents, b.AmountPaidUSDCents, b.BillingPeriodStart, b.DueDate)
	return err
}

func GetBillingRecord(ctx context.Context, q Queryer, id string) (*BillingRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, customer_id, status, amount_usd_cents, amount_paid_usd_cents,
		       billing_period_start, due_date, payment_action_url, tx_digest, created_at, updated_at
		FROM billing_records WHERE id = $1
	`, id)
	return scanBillingRecord(row)
}

func GetBillingRecordForUpdate(ctx context.Context, tx *sql.Tx, id string) (*BillingRecord, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, customer_id, status, amount_usd_cents, amount_paid_usd_cents,
		       billing_period_start, due_date, payment_action_url, tx_digest, created_at, updated_at
		FROM billing_records WHERE id = $1
		FOR UPDATE
	`, id)
	return scanBillingRecord(row)
}

// ListBillingRecordsByCustomer returns a customer's invoices, newest first.
func ListBillingRecordsByCustomer(ctx context.Context, q Queryer, customerID string) ([]*BillingRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, customer_id, status, amount_usd_cents, amount_paid_usd_cents,
		       billing_period_start, due_date, payment_action_url, tx_digest, created_at, updated_at
		FROM billing_records WHERE customer_id = $1
		ORDER BY created_at DESC
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BillingRecord
	for rows.Next() {
		var b BillingRecord
		if err := rows.Scan(&b.ID, &b.CustomerID, &b.Status, &b.AmountUSDCents, &b.AmountPaidUSDCents,
			&b.BillingPeriodStart, &b.DueDate, &b.PaymentActionURL, &b.TxDigest, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// ListPendingBillingRecords returns every invoice awaiting payment,
// across all customers — the reconciliation task's (§4.5.5) input.
func ListPendingBillingRecords(ctx context.Context, q Queryer) ([]*BillingRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, customer_id, status, amount_usd_cents, amount_paid_usd_cents,
		       billing_period_start, due_date, payment_action_url, tx_digest, created_at, updated_at
		FROM billing_records WHERE status = $1
		ORDER BY created_at
	`, enum.InvoicePending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BillingRecord
	for rows.Next() {
		var b BillingRecord
		if err := rows.Scan(&b.ID, &b.CustomerID, &b.Status, &b.AmountUSDCents, &b.AmountPaidUSDCents,
			&b.BillingPeriodStart, &b.DueDate, &b.PaymentActionURL, &b.TxDigest, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

func scanBillingRecord(row *sql.Row) (*BillingRecord, error) {
	var b BillingRecord
	if err := row.Scan(&b.ID, &b.CustomerID, &b.Status, &b.AmountUSDCents, &b.AmountPaidUSDCents,
		&b.BillingPeriodStart, &b.DueDate, &b.PaymentActionURL, &b.TxDigest, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBillingRecordStatus transitions an invoice's status and payment
// bookkeeping fields (§4.5.3's draft→pending→paid|failed|void machine).
func UpdateBillingRecordStatus(ctx context.Context, q Queryer, b *BillingRecord) error {
	_, err := q.ExecContext(ctx, `
		UPDATE billing_records
		SET status = $2, amount_paid_usd_cents = $3, payment_action_url = $4, tx_digest = $5, updated_at = now()
		WHERE id = $1
	`, b.ID, b.Status, b.AmountPaidUSDCents, b.PaymentActionURL, b.TxDigest)
	return err
}

func CreateInvoiceLineItem(ctx context.Context, q Queryer, li *InvoiceLineItem) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO invoice_line_items
			(id, billing_record_id, item_type, service_type, quantity, unit_price_usd_cents, amount_usd_cents, credit_month)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, li.ID, li.BillingRecordID, li.ItemType, li.ServiceType, li.Quantity, li.UnitPriceUSDCents, li.AmountUSDCents, li.CreditMonth)
	return err
}

func ListInvoiceLineItems(ctx context.Context, q Queryer, billingRecordID string) ([]*InvoiceLineItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, billing_record_id, item_type, service_type, quantity, unit_price_usd_cents, amount_usd_cents, credit_month, created_at
		FROM invoice_line_items WHERE billing_record_id = $1
		ORDER BY created_at
	`, billingRecordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*InvoiceLineItem
	for rows.Next() {
		var li InvoiceLineItem
		if err := rows.Scan(&li.ID, &li.BillingRecordID, &li.ItemType, &li.ServiceType, &li.Quantity,
			&li.UnitPriceUSDCents, &li.AmountUSDCents, &li.CreditMonth, &li.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &li)
	}
	return out, rows.Err()
}
