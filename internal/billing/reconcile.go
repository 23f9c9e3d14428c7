package billing

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/store"
)

// hoursInDay is used to express the daysInMonth proration formula in
// terms of time.Duration without a magic literal at each call site.
const hoursInDay = 24 * time.Hour

// ReconcilePayments implements §4.5.5. Idempotent: calling it against a
// customer with no outstanding subPendingInvoiceId is a no-op. Retries
// the provider chain against each pending instance's referenced invoice
// amount; on success clears the pending flag, marks paidOnce, and
// issues a reconciliation credit for the unused remainder of the month.
func (e *Engine) ReconcilePayments(ctx context.Context, customerID string) error {
	return withCustomerLock(ctx, e.db, customerID, func(tx *sql.Tx) error {
		instances, err := store.ListServiceInstancesByCustomer(ctx, tx, customerID)
		if err != nil {
			return err
		}
		for _, inst := range instances {
			if !inst.SubPendingInvoiceID.Valid {
				continue
			}
			if err := e.reconcileOneInstance(ctx, tx, customerID, inst); err != nil {
				return fmt.Errorf("billing: reconcile instance %s: %w", inst.ID, err)
			}
		}
		return nil
	})
}

func (e *Engine) reconcileOneInstance(ctx context.Context, tx *sql.Tx, customerID string, inst *store.ServiceInstance) error {
	billingRecord, err := store.GetBillingRecordForUpdate(ctx, tx, inst.SubPendingInvoiceID.String)
	if err != nil {
		return err
	}

	remaining := billingRecord.AmountUSDCents - billingRecord.AmountPaidUSDCents
	outcome, err := e.dispatchProviderChain(ctx, tx, customerID, billingRecord.ID, remaining, "reconciliation")
	if err != nil {
		return err
	}
	if outcome.Status != enum.InvoicePaid {
		log.Printf("[BILLING] action=reconcile_still_pending customer=%s instance=%s", customerID, inst.ID)
		return nil
	}

	billingRecord.Status = enum.InvoicePaid
	billingRecord.AmountPaidUSDCents = billingRecord.AmountUSDCents
	billingRecord.TxDigest = sql.NullString{String: outcome.TxDigest, Valid: outcome.TxDigest != ""}
	if err := store.UpdateBillingRecordStatus(ctx, tx, billingRecord); err != nil {
		return err
	}

	if err := store.CreateInvoicePayment(ctx, tx, &store.InvoicePayment{
		ID:              uuid.NewString(),
		BillingRecordID: billingRecord.ID,
		SourceType:      enum.PaymentSourceProvider,
		AmountUSDCents:  remaining,
	}); err != nil {
		return err
	}

	inst.SubPendingInvoiceID = sql.NullString{}
	inst.PaidOnce = true
	if err := store.UpdateServiceInstanceState(ctx, tx, inst); err != nil {
		return err
	}
	if err := store.MarkCustomerPaidOnce(ctx, tx, customerID); err != nil {
		return err
	}

	creditCents := reconciliationCreditCents(billingRecord.AmountUSDCents, e.clock.Today())
	if creditCents > 0 {
		if err := store.CreateCustomerCredit(ctx, tx, &store.CustomerCredit{
			ID:                      uuid.NewString(),
			CustomerID:              customerID,
			RemainingAmountUSDCents: creditCents,
			SourceReason:            enum.CreditReasonReconciliationRemainder,
		}); err != nil {
			return err
		}
	}

	log.Printf("[BILLING] action=reconcile_paid customer=%s instance=%s credit=%d", customerID, inst.ID, creditCents)
	return nil
}

// reconciliationCreditCents computes floor(amount * daysNotUsed / daysInMonth)
// using the calendar month containing today — distinct from escrow's
// 28-day rolling spending-limit window (§9 Open Question 3).
func reconciliationCreditCents(amountCents int64, today time.Time) int64 {
	daysInMonth := daysInCalendarMonth(today)
	dayOfMonth := today.Day()
	daysNotUsed := daysInMonth - dayOfMonth
	if daysNotUsed <= 0 {
		return 0
	}
	return amountCents * int64(daysNotUsed) / int64(daysInMonth)
}

func daysInCalendarMonth(t time.Time) int {
	year, month, _ := t.Date()
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
	lastOfThis := firstOfNext.Add(-hoursInDay)
	return lastOfThis.Day()
}
