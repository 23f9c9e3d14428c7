package pubsub

const (
	// TopicSyncAll carries fire-and-forget sync-all triggers from the
	// API surface (C9) to the Global Manager (C7), across the process
	// boundary when they run as separate OS processes (§2 A6).
	TopicSyncAll = "gm:sync-all"

	// TopicReconcile carries per-customer reconcile-payments triggers.
	TopicReconcile = "gm:reconcile"
)
