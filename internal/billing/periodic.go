package billing

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/store"
)

// RunPeriodicStateTransitions advances every service instance through
// the cancellation tail of the state machine (§4.5.2):
//
//	enabled|disabled (paidOnce, cancellationScheduledFor reached) -> cancellation_pending
//	cancellation_pending (grace expired)                          -> not_provisioned (fields reset)
//
// Nothing in this repository calls it on a schedule; each call
// transitions an instance at most once.
func (e *Engine) RunPeriodicStateTransitions(ctx context.Context) error {
	now := e.clock.Now()

	rows, err := e.db.QueryContext(ctx, `
		SELECT id, customer_id FROM service_instances
		WHERE deleted_at IS NULL AND (
			(state IN ('enabled', 'disabled') AND cancellation_scheduled_for IS NOT NULL AND cancellation_scheduled_for <= $1)
			OR (state = 'cancellation_pending' AND cancellation_effective_at IS NOT NULL AND cancellation_effective_at <= $1)
		)
	`, now)
	if err != nil {
		return err
	}
	type pending struct{ instanceID, customerID string }
	var work []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.instanceID, &p.customerID); err != nil {
			rows.Close()
			return err
		}
		work = append(work, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range work {
		if err := e.transitionOneInstance(ctx, p.customerID, p.instanceID); err != nil {
			log.Printf("[BILLING] action=periodic_transition_error customer=%s instance=%s err=%v", p.customerID, p.instanceID, err)
		}
	}
	return nil
}

func (e *Engine) transitionOneInstance(ctx context.Context, customerID, instanceID string) error {
	return withCustomerLock(ctx, e.db, customerID, func(tx *sql.Tx) error {
		instance, err := store.GetServiceInstanceForUpdate(ctx, tx, instanceID)
		if err != nil {
			if store.IsNotFound(err) {
				return nil
			}
			return err
		}

		now := e.clock.Now()
		switch {
		case (instance.State == enum.ServiceEnabled || instance.State == enum.ServiceDisabled) &&
			instance.CancellationScheduledFor.Valid && !instance.CancellationScheduledFor.Time.After(now):
			instance.State = enum.ServiceCancellationPending
			instance.IsUserEnabled = false
			instance.CancellationEffectiveAt = sql.NullTime{Time: now.Add(cancellationGraceDays * 24 * time.Hour), Valid: true}
			log.Printf("[BILLING] action=cancellation_pending customer=%s instance=%s", customerID, instanceID)

		case instance.State == enum.ServiceCancellationPending &&
			instance.CancellationEffectiveAt.Valid && !instance.CancellationEffectiveAt.Time.After(now):
			instance.State = enum.ServiceNotProvisioned
			instance.IsUserEnabled = false
			instance.PaidOnce = false
			instance.SubscriptionChargePending = false
			instance.SubPendingInvoiceID = sql.NullString{}
			instance.CancellationScheduledFor = sql.NullTime{}
			instance.CancellationEffectiveAt = sql.NullTime{}
			instance.ScheduledTier = sql.NullString{}
			log.Printf("[BILLING] action=reset_not_provisioned customer=%s instance=%s", customerID, instanceID)

		default:
			return nil
		}

		return store.UpdateServiceInstanceState(ctx, tx, instance)
	})
}
