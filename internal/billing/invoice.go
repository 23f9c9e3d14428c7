package billing

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/store"
)

// SyncDraftInvoice rebuilds customerID's single draft BillingRecord for
// the upcoming period from current ServiceInstance state (§4.5.3).
// Usage line items from the external stats pipeline are left untouched
// if already present — this only rewrites subscription and credit
// lines.
func (e *Engine) SyncDraftInvoice(ctx context.Context, customerID string) error {
	return withCustomerLock(ctx, e.db, customerID, func(tx *sql.Tx) error {
		draft, err := e.getOrCreateDraft(ctx, tx, customerID)
		if err != nil {
			return err
		}

		instances, err := store.ListServiceInstancesByCustomer(ctx, tx, customerID)
		if err != nil {
			return err
		}

		if err := clearLineItemsOfType(ctx, tx, draft.ID, enum.LineItemSubscription); err != nil {
			return err
		}
		if err := clearLineItemsOfType(ctx, tx, draft.ID, enum.LineItemCredit); err != nil {
			return err
		}

		var subtotal int64
		for _, inst := range instances {
			if inst.SubscriptionChargePending || inst.CancellationScheduledFor.Valid {
				continue
			}
			effectiveTier := inst.Tier
			if inst.ScheduledTier.Valid {
				effectiveTier = enum.Tier(inst.ScheduledTier.String)
			}
			price := e.pricing.priceCents(effectiveTier)
			if err := store.CreateInvoiceLineItem(ctx, tx, &store.InvoiceLineItem{
				ID:                uuid.NewString(),
				BillingRecordID:   draft.ID,
				ItemType:          enum.LineItemSubscription,
				ServiceType:       sql.NullString{String: inst.ServiceType, Valid: true},
				Quantity:          1,
				UnitPriceUSDCents: price,
				AmountUSDCents:    price,
			}); err != nil {
				return err
			}
			subtotal += price
		}

		if subtotal > 0 {
			credits, err := store.ListSpendableCustomerCredits(ctx, tx, customerID, e.clock.Now())
			if err != nil {
				return err
			}
			var creditTotal int64
			for _, c := range credits {
				creditTotal += c.RemainingAmountUSDCents
			}
			if creditTotal > 0 {
				applied := creditTotal
				if applied > subtotal {
					applied = subtotal
				}
				if err := store.CreateInvoiceLineItem(ctx, tx, &store.InvoiceLineItem{
					ID:                uuid.NewString(),
					BillingRecordID:   draft.ID,
					ItemType:          enum.LineItemCredit,
					Quantity:          1,
					UnitPriceUSDCents: -applied,
					AmountUSDCents:    -applied,
				}); err != nil {
					return err
				}
				subtotal -= applied
			}
		}

		draft.AmountUSDCents = subtotal
		return store.UpdateBillingRecordStatus(ctx, tx, draft)
	})
}

func (e *Engine) getOrCreateDraft(ctx context.Context, tx *sql.Tx, customerID string) (*store.BillingRecord, error) {
	records, err := store.ListBillingRecordsByCustomer(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.Status == enum.InvoiceDraft {
			return r, nil
		}
	}
	draft := &store.BillingRecord{
		ID:                 uuid.NewString(),
		CustomerID:         customerID,
		Status:             enum.InvoiceDraft,
		BillingPeriodStart: nextPeriodBoundary(e.clock.Today()),
	}
	if err := store.CreateBillingRecord(ctx, tx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

func clearLineItemsOfType(ctx context.Context, tx *sql.Tx, billingRecordID string, itemType enum.LineItemType) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM invoice_line_items WHERE billing_record_id = $1 AND item_type = $2`, billingRecordID, itemType)
	return err
}

// AdvancePeriodBoundary implements §4.5.3's period-boundary processing
// for a single customer's draft invoice: draft -> pending, apply
// credits FIFO, then dispatch any remainder through the provider chain.
func (e *Engine) AdvancePeriodBoundary(ctx context.Context, customerID string) error {
	return withCustomerLock(ctx, e.db, customerID, func(tx *sql.Tx) error {
		draft, err := e.getOrCreateDraft(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if draft.Status != enum.InvoiceDraft {
			return nil
		}
		draft.Status = enum.InvoicePending
		if err := store.UpdateBillingRecordStatus(ctx, tx, draft); err != nil {
			return err
		}

		remaining := draft.AmountUSDCents
		credits, err := store.ListSpendableCustomerCredits(ctx, tx, customerID, e.clock.Now())
		if err != nil {
			return err
		}
		for _, c := range credits {
			if remaining <= 0 {
				break
			}
			applied := c.RemainingAmountUSDCents
			if applied > remaining {
				applied = remaining
			}
			if err := store.DebitCustomerCredit(ctx, tx, c.ID, applied); err != nil {
				return err
			}
			if err := store.CreateInvoicePayment(ctx, tx, &store.InvoicePayment{
				ID:              uuid.NewString(),
				BillingRecordID: draft.ID,
				SourceType:      enum.PaymentSourceCredit,
				ReferenceID:     sql.NullString{String: c.ID, Valid: true},
				AmountUSDCents:  applied,
			}); err != nil {
				return err
			}
			draft.AmountPaidUSDCents += applied
			remaining -= applied
		}

		if remaining <= 0 {
			draft.Status = enum.InvoicePaid
			if err := store.UpdateBillingRecordStatus(ctx, tx, draft); err != nil {
				return err
			}
			return applyScheduledTiers(ctx, tx, customerID)
		}

		outcome, err := e.dispatchProviderChain(ctx, tx, customerID, draft.ID, remaining, "monthly invoice")
		if err != nil {
			return err
		}
		draft.Status = outcome.Status
		draft.PaymentActionURL = sql.NullString{String: outcome.PaymentActionURL, Valid: outcome.PaymentActionURL != ""}
		draft.TxDigest = sql.NullString{String: outcome.TxDigest, Valid: outcome.TxDigest != ""}
		if outcome.Status == enum.InvoicePaid {
			draft.AmountPaidUSDCents = draft.AmountUSDCents
		} else {
			if err := markServicesSubPending(ctx, tx, customerID, draft.ID); err != nil {
				return err
			}
		}
		if err := store.UpdateBillingRecordStatus(ctx, tx, draft); err != nil {
			return err
		}
		return applyScheduledTiers(ctx, tx, customerID)
	})
}

// applyScheduledTiers implements the downgrade half of §4.5.6: a
// scheduledTier set by ChangeTier takes effect at the period boundary
// and is cleared once applied.
func applyScheduledTiers(ctx context.Context, tx *sql.Tx, customerID string) error {
	instances, err := store.ListServiceInstancesByCustomer(ctx, tx, customerID)
	if err != nil {
		return err
	}
	for _, inst := range instances {
		if !inst.ScheduledTier.Valid {
			continue
		}
		inst.Tier = enum.Tier(inst.ScheduledTier.String)
		inst.ScheduledTier = sql.NullString{}
		if err := store.UpdateServiceInstanceState(ctx, tx, inst); err != nil {
			return err
		}
	}
	return nil
}

func markServicesSubPending(ctx context.Context, tx *sql.Tx, customerID, billingRecordID string) error {
	instances, err := store.ListServiceInstancesByCustomer(ctx, tx, customerID)
	if err != nil {
		return err
	}
	for _, inst := range instances {
		inst.SubPendingInvoiceID = sql.NullString{String: billingRecordID, Valid: true}
		if err := store.UpdateServiceInstanceState(ctx, tx, inst); err != nil {
			return err
		}
	}
	return nil
}
