// Package billing implements the control plane's billing engine (C5):
// the subscription state machine, invoice lifecycle, provider-chain
// dispatch, reconciliation, and tier changes for gateway service
// instances.
//
// # Overview
//
// Each customer subscribes zero or more ServiceInstances (one per
// service type). Subscribing provisions the instance and attempts an
// immediate charge through the provider chain; paying unlocks
// enable/disable without further charges until the next period
// boundary. Unpaid subscriptions may be cancelled for free (immediate
// deletion); paid subscriptions schedule an end-of-period cancellation
// followed by a 7-day grace period.
//
// # Architecture
//
//	Subscribe/Enable/Disable/ScheduleCancel  (subscription.go)
//	        │
//	        ▼
//	SyncDraftInvoice / AdvancePeriodBoundary (invoice.go)
//	        │
//	        ▼
//	dispatchProviderChain                    (chain.go)
//	        │
//	        ▼
//	payment.Provider{escrow, stripe, paypal}
//
// ReconcilePayments (reconcile.go) retries the provider chain against
// a service's outstanding pending invoice, independent of the period
// boundary. ChangeTier (tier.go) handles upgrades (immediate prorated
// charge) and downgrades (scheduled, applied at the next boundary).
//
// All of the above run inside withCustomerLock (lock.go), which wraps
// store.WithTx + store.LockCustomer so every customer-scoped mutation
// is serialized against concurrent requests for the same customer.
package billing
