// Package pubsub provides a publish-subscribe interface carrying the
// Global Manager's fire-and-forget task triggers (A6).
//
// # Overview
//
// The API surface (C9) commits a mutation in its own transaction, then
// publishes a best-effort trigger for a subscriber to feed into the GM's
// task queue (§4.7.1). Delivery is never guaranteed: a dropped sync-all
// is covered by the GM's periodic sync-all, which picks up anything
// MaxConfigChangeSeq leaves pending; nothing re-sends a dropped
// reconcile trigger. cmd/gm does not subscribe to these topics.
//
// # Architecture
//
// ```
// ┌─────────────┐     ┌─────────────┐     ┌─────────────┐
// │  API (C9)   │     │   Redis     │     │     GM      │
// │  (Publish)  │────▶│   Pub/Sub   │────▶│   (C7)      │
// └─────────────┘     └─────────────┘     └─────────────┘
// ```
//
// # Usage
//
// Initialize the pub/sub client:
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	ps := pubsub.NewRedisPubSub(redisClient)
//
// Publish a trigger:
//
//	err := ps.Publish(ctx, pubsub.TopicSyncAll, &pubsub.SyncAllEvent{
//		Type:      pubsub.EventTypeSyncAllRequested,
//		TaskID:    taskID,
//		Timestamp: now,
//	})
//
// Subscribe to a topic:
//
//	ch, unsub := ps.Subscribe(ctx, pubsub.TopicSyncAll)
//	defer unsub()
//	for msg := range ch {
//		var event pubsub.SyncAllEvent
//		json.Unmarshal(msg, &event)
//		// enqueue a sync-all task
//	}
//
// In single-process deployments (GM and API in the same binary), the
// queue is enqueued directly in-process and pubsub goes unused —
// MemoryPubSub exists for tests and for local development without
// Redis.
package pubsub
