package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/pubsub"
	"github.com/suiftly/sealctl/internal/store"
)

type ipAllowlistRequest struct {
	InstanceID string   `json:"instance_id"`
	Addresses  []string `json:"addresses"`
}

// handleUpdateIPAllowlist implements "PUT /v1/customers/{id}/config/ip-allowlist",
// the representative gateway-config mutation from S5: it stores the
// mutation verbatim in the instance's opaque config payload, calls
// markConfigChanged to raise the vault's MaxConfigChangeSeq, stamps the
// expected seq onto the instance's own config-change column, and
// triggers a fire-and-forget sync-all so the mutation reaches a vault
// without waiting for the GM's periodic sweep.
func (s *Server) handleUpdateIPAllowlist(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	var req ipAllowlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}
	if req.InstanceID == "" {
		writeErr(w, fmt.Errorf("%w: instance_id is required", errInvalidRequest))
		return
	}

	var expectedSeq int64
	err := withCustomerLock(r.Context(), s.db, customerID, func(tx *sql.Tx) error {
		instance, err := store.GetServiceInstanceForUpdate(r.Context(), tx, req.InstanceID)
		if err != nil {
			return err
		}
		if instance.CustomerID != customerID {
			return store.ErrNotFound
		}
		vt, ok := enum.VaultTypeForService(instance.ServiceType)
		if !ok {
			return fmt.Errorf("%w: instance %s has no matching vault type", errInvalidRequest, req.InstanceID)
		}

		payload, err := json.Marshal(req.Addresses)
		if err != nil {
			return fmt.Errorf("%w: %v", errInvalidRequest, err)
		}
		if err := store.UpdateServiceInstanceConfigJSON(r.Context(), tx, req.InstanceID, string(payload)); err != nil {
			return err
		}

		expectedSeq, err = store.MarkConfigChanged(r.Context(), tx, vt)
		if err != nil {
			return err
		}
		return store.BumpConfigChangeVaultSeq(r.Context(), tx, req.InstanceID, vt, expectedSeq)
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	s.triggerSyncAll(r.Context(), customerID)
	audit(r.Context(), s.db, customerID, "update_ip_allowlist", fmt.Sprintf("instance=%s expected_seq=%d", req.InstanceID, expectedSeq))
	writeOK(w, http.StatusOK, map[string]interface{}{"instance_id": req.InstanceID, "expected_seq": expectedSeq})
}

// triggerSyncAll is non-fatal on unreachability: a dedicated GM wired
// in-process gets a direct queue submit; otherwise the trigger is
// published best-effort, and the GM's own periodic sync-all sweep is the
// safety net if nothing is listening.
func (s *Server) triggerSyncAll(ctx context.Context, customerID string) {
	if s.gm != nil {
		s.gm.Submit(enum.TaskSyncAll, customerID)
		return
	}
	if s.ps != nil {
		evt := pubsub.SyncAllEvent{
			Type:      pubsub.EventTypeSyncAllRequested,
			TaskID:    uuid.NewString(),
			Timestamp: time.Now(),
		}
		publishBestEffort(ctx, s.ps, pubsub.TopicSyncAll, evt)
	}
}
