// Package globalmanager implements the GM (C7): a single-threaded
// coordinator that serializes sync-all/reconcile/refresh-lm-status work
// onto one worker goroutine, the way the teacher's internal/monitor
// package runs one worker loop per concern (BotMonitor, UsageAggregator)
// rather than dispatching each trigger onto its own goroutine.
package globalmanager

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/suiftly/sealctl/internal/enum"
)

// Disposition tells a task submitter what happened to its request
// (§4.7.1).
type Disposition string

const (
	DispositionQueued       Disposition = "queued"
	DispositionDeduplicated Disposition = "deduplicated"
	DispositionCompleted    Disposition = "completed"
)

// Task is one FIFO queue entry. CustomerID is only meaningful for
// reconcile-payments; sync-all and refresh-lm-status are fleet-wide.
type Task struct {
	ID         string
	Kind       enum.TaskKind
	CustomerID string

	done chan struct{}
	err  error
}

// dedupeKey identifies tasks that should collapse into one another.
// sync-all dedupes fleet-wide per §4.7.1; reconcile-payments dedupes
// too, keyed per customer so two different customers' reconcile requests never
// collide, and refresh-lm-status is left undeduplicated since polling
// is idempotent and cheap.
func (t *Task) dedupeKey() string {
	switch t.Kind {
	case enum.TaskSyncAll:
		return string(enum.TaskSyncAll)
	case enum.TaskReconcilePayments:
		return string(enum.TaskReconcilePayments) + ":" + t.CustomerID
	default:
		return ""
	}
}

// Handler executes one task's work. Returning an error fails the task;
// the queue does not retry. The polling loop's periodic sync-all covers
// a failed sync-all; a failed reconcile-payments task is not re-run.
type Handler func(ctx context.Context, t *Task) error

// Queue is the GM's in-memory FIFO task queue (§4.7.1). It is safe for
// concurrent Submit calls from multiple API handlers.
type Queue struct {
	mu      sync.Mutex
	pending map[string]*Task // dedupeKey -> in-flight task, queued or running
	items   chan *Task
	handler Handler
}

// NewQueue creates a queue with buffer capacity cap. A single worker
// goroutine (started by Run) drains it serially.
func NewQueue(handler Handler, capacity int) *Queue {
	return &Queue{
		pending: make(map[string]*Task),
		items:   make(chan *Task, capacity),
		handler: handler,
	}
}

// Submit enqueues a task. If an identical sync-all or
// reconcile-payments(customerID) task is already queued or running, the
// existing task's id is returned with DispositionDeduplicated instead of
// enqueuing a second one.
func (q *Queue) Submit(kind enum.TaskKind, customerID string) (taskID string, disposition Disposition) {
	t := &Task{ID: uuid.NewString(), Kind: kind, CustomerID: customerID, done: make(chan struct{})}
	key := t.dedupeKey()

	q.mu.Lock()
	if key != "" {
		if existing, ok := q.pending[key]; ok {
			q.mu.Unlock()
			return existing.ID, DispositionDeduplicated
		}
		q.pending[key] = t
	}
	q.mu.Unlock()

	q.items <- t
	return t.ID, DispositionQueued
}

// SubmitAndWait enqueues a task (respecting dedup, same as Submit) and
// blocks until it — or the task it deduplicated onto — finishes,
// returning its error. Used by tests and by any caller that wants
// synchronous completion (§4.7.1's "wait-for-completion mode").
func (q *Queue) SubmitAndWait(ctx context.Context, kind enum.TaskKind, customerID string) error {
	t := &Task{ID: uuid.NewString(), Kind: kind, CustomerID: customerID, done: make(chan struct{})}
	key := t.dedupeKey()

	q.mu.Lock()
	target := t
	if key != "" {
		if existing, ok := q.pending[key]; ok {
			target = existing
		} else {
			q.pending[key] = t
		}
	}
	q.mu.Unlock()

	if target == t {
		q.items <- t
	}

	select {
	case <-target.done:
		return target.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue serially until ctx is cancelled. Intended to run
// in its own goroutine for the lifetime of the GM process.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.items:
			t.err = q.handler(ctx, t)
			q.mu.Lock()
			if key := t.dedupeKey(); key != "" {
				delete(q.pending, key)
			}
			q.mu.Unlock()
			close(t.done)
		}
	}
}

// Len reports how many tasks are currently tracked as pending
// (queued or running), for tests and diagnostics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func unknownTaskKindErr(kind enum.TaskKind) error {
	return fmt.Errorf("globalmanager: unknown task kind %q", kind)
}
