package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/pubsub"
)

// handleReconcile implements "POST /v1/customers/{id}/reconcile" (§4.5.5c):
// a manual reconcile-payments trigger scoped to one customer. When a
// Global Manager is wired in-process it submits the task directly;
// otherwise it publishes a ReconcileEvent on pubsub.TopicReconcile.
// cmd/gm does not subscribe to that topic, so no process in this
// repository runs a reconciliation from the published event.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	taskID := uuid.NewString()

	if s.gm != nil {
		id, disposition := s.gm.Submit(enum.TaskReconcilePayments, customerID)
		audit(r.Context(), s.db, customerID, "reconcile_triggered", fmt.Sprintf("task=%s disposition=%s", id, disposition))
		writeOK(w, http.StatusAccepted, map[string]string{"task_id": id, "disposition": string(disposition)})
		return
	}

	if s.ps != nil {
		evt := pubsub.ReconcileEvent{
			Type:       pubsub.EventTypeReconcileRequested,
			TaskID:     taskID,
			CustomerID: customerID,
			Timestamp:  time.Now(),
		}
		publishBestEffort(r.Context(), s.ps, pubsub.TopicReconcile, evt)
	}

	audit(r.Context(), s.db, customerID, "reconcile_triggered", fmt.Sprintf("task=%s", taskID))
	writeOK(w, http.StatusAccepted, map[string]string{"task_id": taskID, "disposition": "queued"})
}

// publishBestEffort fires evt at topic without letting a dead broker or
// slow subscriber block the request — matching pubsub.SyncAllEvent's
// documented fire-and-forget contract (the GM's periodic sync-all
// catches any config change a dropped sync-all event misses; a dropped
// reconcile event is not re-sent).
func publishBestEffort(ctx context.Context, ps pubsub.PubSub, topic string, evt interface{}) {
	if err := ps.Publish(ctx, topic, evt); err != nil {
		log.Printf("[API] action=publish_fail topic=%s error=%v", topic, err)
	}
}
