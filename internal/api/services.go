package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/suiftly/sealctl/internal/enum"
)

type subscribeRequest struct {
	ServiceType string `json:"service_type"`
	Tier        string `json:"tier"`
}

// handleSubscribe implements "POST /v1/customers/{id}/services" (§4.5.2
// not_provisioned -> provisioning).
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}
	if req.ServiceType == "" || req.Tier == "" {
		writeErr(w, fmt.Errorf("%w: service_type and tier are required", errInvalidRequest))
		return
	}

	instance, err := s.engine.Subscribe(r.Context(), customerID, req.ServiceType, enum.Tier(req.Tier))
	if err != nil {
		writeErr(w, err)
		return
	}

	audit(r.Context(), s.db, customerID, "subscribe", fmt.Sprintf("service_type=%s tier=%s instance=%s", req.ServiceType, req.Tier, instance.ID))
	writeOK(w, http.StatusCreated, instance)
}

// handleEnable implements "POST /v1/customers/{id}/services/{type}/enable".
// The path carries service_type, but billing.Engine.Enable operates on an
// instance id — the body supplies it, since a customer may in principle
// hold more than one instance of a type across its soft-deleted history.
func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	s.instanceAction(w, r, "enable", s.engine.Enable)
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	s.instanceAction(w, r, "disable", s.engine.Disable)
}

type instanceActionRequest struct {
	InstanceID string `json:"instance_id"`
}

func (s *Server) instanceAction(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, customerID, instanceID string) error) {
	customerID := chi.URLParam(r, "customerID")

	var req instanceActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}
	if req.InstanceID == "" {
		writeErr(w, fmt.Errorf("%w: instance_id is required", errInvalidRequest))
		return
	}

	if err := fn(r.Context(), customerID, req.InstanceID); err != nil {
		writeErr(w, err)
		return
	}

	audit(r.Context(), s.db, customerID, action, fmt.Sprintf("instance=%s", req.InstanceID))
	writeOK(w, http.StatusOK, map[string]string{"instance_id": req.InstanceID})
}

type cancelRequest struct {
	InstanceID string `json:"instance_id"`
	Undo       bool   `json:"undo"`
}

// handleCancel implements "POST /v1/customers/{id}/services/{type}/cancel",
// dispatching to scheduleCancellation or undoCancel per §4.5.2 depending
// on the undo flag.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}
	if req.InstanceID == "" {
		writeErr(w, fmt.Errorf("%w: instance_id is required", errInvalidRequest))
		return
	}

	var err error
	action := "schedule_cancel"
	if req.Undo {
		action = "undo_cancel"
		err = s.engine.UndoCancel(r.Context(), customerID, req.InstanceID)
	} else {
		err = s.engine.ScheduleCancel(r.Context(), customerID, req.InstanceID)
	}
	if err != nil {
		writeErr(w, err)
		return
	}

	audit(r.Context(), s.db, customerID, action, fmt.Sprintf("instance=%s", req.InstanceID))
	writeOK(w, http.StatusOK, map[string]string{"instance_id": req.InstanceID})
}

type changeTierRequest struct {
	InstanceID string `json:"instance_id"`
	Tier       string `json:"tier"`
}

// handleChangeTier implements "POST /v1/customers/{id}/services/{type}/tier"
// (§4.5.6 upgrade/downgrade).
func (s *Server) handleChangeTier(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	var req changeTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}
	if req.InstanceID == "" || req.Tier == "" {
		writeErr(w, fmt.Errorf("%w: instance_id and tier are required", errInvalidRequest))
		return
	}

	if err := s.engine.ChangeTier(r.Context(), customerID, req.InstanceID, enum.Tier(req.Tier)); err != nil {
		writeErr(w, err)
		return
	}

	audit(r.Context(), s.db, customerID, "change_tier", fmt.Sprintf("instance=%s tier=%s", req.InstanceID, req.Tier))
	writeOK(w, http.StatusOK, map[string]string{"instance_id": req.InstanceID, "tier": req.Tier})
}
