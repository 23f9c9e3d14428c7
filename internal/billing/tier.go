package billing

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/store"
)

// ChangeTier implements §4.5.6. Upgrades charge a prorated delta
// immediately; downgrades are scheduled and applied at the next period
// boundary without any immediate charge.
func (e *Engine) ChangeTier(ctx context.Context, customerID, instanceID string, newTier enum.Tier) error {
	return withCustomerLock(ctx, e.db, customerID, func(tx *sql.Tx) error {
		instance, err := store.GetServiceInstanceForUpdate(ctx, tx, instanceID)
		if err != nil {
			return err
		}

		oldPrice := e.pricing.priceCents(instance.Tier)
		newPrice := e.pricing.priceCents(newTier)

		if newPrice <= oldPrice {
			instance.ScheduledTier = sql.NullString{String: string(newTier), Valid: true}
			log.Printf("[BILLING] action=tier_downgrade_scheduled customer=%s instance=%s tier=%s", customerID, instanceID, newTier)
			return store.UpdateServiceInstanceState(ctx, tx, instance)
		}

		today := e.clock.Today()
		daysInMonth := daysInCalendarMonth(today)
		daysRemaining := daysInMonth - today.Day()
		prorated := (newPrice - oldPrice) * int64(daysRemaining) / int64(daysInMonth)

		billingRecord := &store.BillingRecord{
			ID:                 uuid.NewString(),
			CustomerID:         customerID,
			Status:             enum.InvoicePending,
			AmountUSDCents:     prorated,
			BillingPeriodStart: today,
		}
		if err := store.CreateBillingRecord(ctx, tx, billingRecord); err != nil {
			return err
		}

		outcome, err := e.dispatchProviderChain(ctx, tx, customerID, billingRecord.ID, prorated, fmt.Sprintf("tier upgrade to %s", newTier))
		if err != nil {
			return err
		}
		billingRecord.Status = outcome.Status
		billingRecord.TxDigest = sql.NullString{String: outcome.TxDigest, Valid: outcome.TxDigest != ""}
		if outcome.Status == enum.InvoicePaid {
			billingRecord.AmountPaidUSDCents = prorated
		}
		if err := store.UpdateBillingRecordStatus(ctx, tx, billingRecord); err != nil {
			return err
		}

		if outcome.Status != enum.InvoicePaid {
			instance.SubPendingInvoiceID = sql.NullString{String: billingRecord.ID, Valid: true}
		}
		instance.Tier = newTier
		log.Printf("[BILLING] action=tier_upgrade customer=%s instance=%s tier=%s prorated=%d status=%s", customerID, instanceID, newTier, prorated, outcome.Status)
		return store.UpdateServiceInstanceState(ctx, tx, instance)
	})
}
