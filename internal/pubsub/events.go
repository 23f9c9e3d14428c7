package pubsub

import "time"

// EventType identifies the type of event for type switches.
type EventType string

const (
	EventTypeSyncAllRequested EventType = "sync_all_requested"
	EventTypeReconcileRequested EventType = "reconcile_requested"
)

// SyncAllEvent is published on the sync-all topic whenever the API
// surface (C9) commits a mutation via markConfigChanged and wants the
// Global Manager to pick up pending vault generation sooner than its
// periodic sweep would. Delivery is fire-and-forget and best-effort:
// the GM's own periodic sync-all already catches anything this event
// misses (§4.9), so a dropped or unconsumed event is never fatal.
type SyncAllEvent struct {
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ReconcileEvent triggers an out-of-band reconcile-payments task for a
// single customer, published by C9's manual reconciliation endpoint.
type ReconcileEvent struct {
	Type       EventType `json:"type"`
	TaskID     string    `json:"task_id"`
	CustomerID string    `json:"customer_id"`
	Timestamp  time.Time `json:"timestamp"`
}
