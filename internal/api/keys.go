package api

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/suiftly/sealctl/internal/derivation"
	"github.com/suiftly/sealctl/internal/store"
)

type createSealKeyRequest struct {
	InstanceID   string `json:"instance_id"`
	ProcessGroup int    `json:"process_group"`
	PublicKey    string `json:"public_key"`
}

// handleCreateSealKey implements "POST /v1/customers/{id}/keys": allocates
// a derivation index (C3) and persists the SealKey inside the same
// transaction, under the customer's advisory lock.
func (s *Server) handleCreateSealKey(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	var req createSealKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}
	if req.InstanceID == "" || req.PublicKey == "" {
		writeErr(w, fmt.Errorf("%w: instance_id and public_key are required", errInvalidRequest))
		return
	}
	pg := derivation.ProcessGroup(req.ProcessGroup)
	if pg != derivation.PG1 && pg != derivation.PG2 {
		writeErr(w, fmt.Errorf("%w: process_group must be 1 or 2", errInvalidRequest))
		return
	}

	var key *store.SealKey
	err := withCustomerLock(r.Context(), s.db, customerID, func(tx *sql.Tx) error {
		instance, err := store.GetServiceInstanceForUpdate(r.Context(), tx, req.InstanceID)
		if err != nil {
			return err
		}
		if instance.CustomerID != customerID {
			return store.ErrNotFound
		}

		index, err := derivation.Allocate(r.Context(), tx, pg)
		if err != nil {
			return err
		}

		key = &store.SealKey{
			ID:              uuid.NewString(),
			CustomerID:      customerID,
			InstanceID:      req.InstanceID,
			DerivationIndex: index,
			ProcessGroup:    int16(pg),
			PublicKey:       req.PublicKey,
			IsUserEnabled:   true,
		}
		return store.CreateSealKey(r.Context(), tx, key)
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	audit(r.Context(), s.db, customerID, "create_seal_key", fmt.Sprintf("instance=%s key=%s derivation_index=%d", req.InstanceID, key.ID, key.DerivationIndex))
	writeOK(w, http.StatusCreated, key)
}
