package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/store"
)

// resubscribeCooldown bounds how long a soft-deleted ServiceInstance's
// id is held for reuse (§9 Open Question 2).
const resubscribeCooldown = 7 * 24 * time.Hour

// ErrChargePending is returned by Enable when a prior subscribe/retry
// left a subPendingInvoiceId unresolved.
var ErrChargePending = errors.New("billing: service has an outstanding pending invoice")

// Subscribe provisions serviceType for customerID at tier, attempting
// an immediate charge for the first month (§4.5.2 provisioning state).
func (e *Engine) Subscribe(ctx context.Context, customerID, serviceType string, tier enum.Tier) (*store.ServiceInstance, error) {
	var result *store.ServiceInstance
	err := withCustomerLock(ctx, e.db, customerID, func(tx *sql.Tx) error {
		if existing, err := store.GetServiceInstanceByCustomerAndType(ctx, tx, customerID, serviceType); err == nil && existing != nil {
			return fmt.Errorf("billing: customer %s already has a %s service instance", customerID, serviceType)
		} else if err != nil && !store.IsNotFound(err) {
			return err
		}

		instance, err := e.resolveInstanceIdentity(ctx, tx, customerID, serviceType)
		if err != nil {
			return err
		}
		instance.Tier = tier
		instance.State = enum.ServiceProvisioning
		instance.IsUserEnabled = false

		amount := e.pricing.priceCents(tier)
		billingRecord := &store.BillingRecord{
			ID:                 uuid.NewString(),
			CustomerID:         customerID,
			Status:             enum.InvoicePending,
			AmountUSDCents:     amount,
			BillingPeriodStart: e.clock.Today(),
		}
		if err := store.CreateBillingRecord(ctx, tx, billingRecord); err != nil {
			return err
		}
		if err := store.CreateInvoiceLineItem(ctx, tx, &store.InvoiceLineItem{
			ID:                uuid.NewString(),
			BillingRecordID:   billingRecord.ID,
			ItemType:          enum.LineItemSubscription,
			ServiceType:       sql.NullString{String: serviceType, Valid: true},
			Quantity:          1,
			UnitPriceUSDCents: amount,
			AmountUSDCents:    amount,
		}); err != nil {
			return err
		}

		outcome, err := e.dispatchProviderChain(ctx, tx, customerID, billingRecord.ID, amount, "subscription: "+serviceType)
		if err != nil {
			return err
		}

		billingRecord.Status = outcome.Status
		billingRecord.PaymentActionURL = sql.NullString{String: outcome.PaymentActionURL, Valid: outcome.PaymentActionURL != ""}
		billingRecord.TxDigest = sql.NullString{String: outcome.TxDigest, Valid: outcome.TxDigest != ""}
		if outcome.Status == enum.InvoicePaid {
			billingRecord.AmountPaidUSDCents = amount
		}
		if err := store.UpdateBillingRecordStatus(ctx, tx, billingRecord); err != nil {
			return err
		}

		instance.State = enum.ServiceDisabled
		switch outcome.Status {
		case enum.InvoicePaid:
			instance.PaidOnce = true
			if err := store.MarkCustomerPaidOnce(ctx, tx, customerID); err != nil {
				return err
			}
		default:
			instance.SubPendingInvoiceID = sql.NullString{String: billingRecord.ID, Valid: true}
		}

		isNew := instance.CreatedAt.IsZero()
		if isNew {
			if err := store.CreateServiceInstance(ctx, tx, instance); err != nil {
				return err
			}
		} else {
			if err := store.UndeleteServiceInstance(ctx, tx, instance); err != nil {
				return err
			}
		}
		if err := store.UpdateServiceInstanceState(ctx, tx, instance); err != nil {
			return err
		}

		log.Printf("[BILLING] action=subscribe customer=%s service=%s tier=%s status=%s", customerID, serviceType, tier, outcome.Status)
		result = instance
		return nil
	})
	return result, err
}

// resolveInstanceIdentity implements the resubscribe-identity rule
// (§9 Open Question 2): a soft-deleted instance of the same type within
// the cooldown window is reused (same id); otherwise a fresh instance
// is created.
func (e *Engine) resolveInstanceIdentity(ctx context.Context, tx *sql.Tx, customerID, serviceType string) (*store.ServiceInstance, error) {
	deleted, err := store.FindSoftDeletedServiceInstance(ctx, tx, customerID, serviceType)
	if err != nil && !store.IsNotFound(err) {
		return nil, err
	}
	if deleted != nil && deleted.DeletedAt.Valid && e.clock.Now().Sub(deleted.DeletedAt.Time) <= resubscribeCooldown {
		return deleted, nil
	}
	return &store.ServiceInstance{
		ID:          uuid.NewString(),
		CustomerID:  customerID,
		ServiceType: serviceType,
	}, nil
}

// Enable transitions a disabled instance to enabled. Any outstanding
// subPendingInvoiceId is retried first; enabling only proceeds if the
// retry fully pays the invoice (§4.5.2).
func (e *Engine) Enable(ctx context.Context, customerID, instanceID string) error {
	return withCustomerLock(ctx, e.db, customerID, func(tx *sql.Tx) error {
		instance, err := store.GetServiceInstanceForUpdate(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		if instance.SubscriptionChargePending {
			return ErrChargePending
		}
		if instance.SubPendingInvoiceID.Valid {
			paid, err := e.retryPendingInvoice(ctx, tx, customerID, instance)
			if err != nil {
				return err
			}
			if !paid {
				return ErrChargePending
			}
		}
		instance.State = enum.ServiceEnabled
		instance.IsUserEnabled = true
		if err := store.UpdateServiceInstanceState(ctx, tx, instance); err != nil {
			return err
		}
		log.Printf("[BILLING] action=enable customer=%s instance=%s", customerID, instanceID)
		return nil
	})
}

// Disable transitions an enabled instance back to disabled.
func (e *Engine) Disable(ctx context.Context, customerID, instanceID string) error {
	return withCustomerLock(ctx, e.db, customerID, func(tx *sql.Tx) error {
		instance, err := store.GetServiceInstanceForUpdate(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		instance.State = enum.ServiceDisabled
		instance.IsUserEnabled = false
		if err := store.UpdateServiceInstanceState(ctx, tx, instance); err != nil {
			return err
		}
		log.Printf("[BILLING] action=disable customer=%s instance=%s", customerID, instanceID)
		return nil
	})
}

// ScheduleCancel implements §4.5.2's cancellation branch: unpaid
// services are deleted immediately (soft-delete); paid services
// schedule an end-of-period transition.
func (e *Engine) ScheduleCancel(ctx context.Context, customerID, instanceID string) error {
	return withCustomerLock(ctx, e.db, customerID, func(tx *sql.Tx) error {
		instance, err := store.GetServiceInstanceForUpdate(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		if !instance.PaidOnce {
			if err := store.SoftDeleteServiceInstance(ctx, tx, instanceID); err != nil {
				return err
			}
			log.Printf("[BILLING] action=cancel_unpaid_delete customer=%s instance=%s", customerID, instanceID)
			return nil
		}

		instance.CancellationScheduledFor = sql.NullTime{Time: nextPeriodBoundary(e.clock.Today()), Valid: true}
		if err := store.UpdateServiceInstanceState(ctx, tx, instance); err != nil {
			return err
		}
		log.Printf("[BILLING] action=cancel_scheduled customer=%s instance=%s effective=%s", customerID, instanceID, instance.CancellationScheduledFor.Time)
		return nil
	})
}

// UndoCancel clears a scheduled cancellation.
func (e *Engine) UndoCancel(ctx context.Context, customerID, instanceID string) error {
	return withCustomerLock(ctx, e.db, customerID, func(tx *sql.Tx) error {
		instance, err := store.GetServiceInstanceForUpdate(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		instance.CancellationScheduledFor = sql.NullTime{}
		if err := store.UpdateServiceInstanceState(ctx, tx, instance); err != nil {
			return err
		}
		log.Printf("[BILLING] action=cancel_undo customer=%s instance=%s", customerID, instanceID)
		return nil
	})
}

// retryPendingInvoice retries the provider chain against the instance's
// referenced invoice amount (not a recalculated tier price — the
// amount may reflect prior proration).
func (e *Engine) retryPendingInvoice(ctx context.Context, tx *sql.Tx, customerID string, instance *store.ServiceInstance) (bool, error) {
	billingRecord, err := store.GetBillingRecordForUpdate(ctx, tx, instance.SubPendingInvoiceID.String)
	if err != nil {
		return false, err
	}
	remaining := billingRecord.AmountUSDCents - billingRecord.AmountPaidUSDCents
	outcome, err := e.dispatchProviderChain(ctx, tx, customerID, billingRecord.ID, remaining, "subscription retry")
	if err != nil {
		return false, err
	}
	billingRecord.Status = outcome.Status
	billingRecord.PaymentActionURL = sql.NullString{String: outcome.PaymentActionURL, Valid: outcome.PaymentActionURL != ""}
	billingRecord.TxDigest = sql.NullString{String: outcome.TxDigest, Valid: outcome.TxDigest != ""}
	if outcome.Status == enum.InvoicePaid {
		billingRecord.AmountPaidUSDCents = billingRecord.AmountUSDCents
	}
	if err := store.UpdateBillingRecordStatus(ctx, tx, billingRecord); err != nil {
		return false, err
	}
	if outcome.Status != enum.InvoicePaid {
		return false, nil
	}
	instance.SubPendingInvoiceID = sql.NullString{}
	instance.PaidOnce = true
	return true, store.MarkCustomerPaidOnce(ctx, tx, customerID)
}

// nextPeriodBoundary returns the 1st of the month following t.
func nextPeriodBoundary(t time.Time) time.Time {
	year, month, _ := t.Date()
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
}
