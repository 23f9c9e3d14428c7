// Package api exposes the control plane's external HTTP surface (C9):
// subscription management, SealKey allocation, gateway-config mutation,
// manual reconciliation, and sync-status polling. Every mutating handler
// runs its DB writes in one transaction under a per-customer advisory
// lock (directly or through billing.Engine) and writes an audit log
// entry; reconciliation only queues or publishes a task, and sync-status
// is a read that takes no lock and writes no audit entry. This mirrors the teacher's webhook handler shape generalized
// across a full chi route tree.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/suiftly/sealctl/internal/billing"
	"github.com/suiftly/sealctl/internal/store"
)

// errKind classifies a handler error for the response envelope. The
// taxonomy is deliberately small: callers branch on retryable, not on
// kind, for anything beyond surfacing a message.
type errKind string

const (
	kindNotFound           errKind = "not_found"
	kindInvalidRequest     errKind = "invalid_request"
	kindPreconditionFailed errKind = "precondition_failed"
	kindConflict           errKind = "conflict"
	kindInternal           errKind = "internal"
)

// envelope is the uniform {ok|err{kind,message,retryable}} response shape
// (§9). Exactly one of Data or Err is populated.
type envelope struct {
	OK   bool        `json:"ok"`
	Data interface{} `json:"data,omitempty"`
	Err  *envErr     `json:"error,omitempty"`
}

type envErr struct {
	Kind      errKind `json:"kind"`
	Message   string  `json:"message"`
	Retryable bool    `json:"retryable"`
}

func writeOK(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{OK: true, Data: data})
}

// writeErr classifies err and writes the matching envelope + status code.
// Unrecognized errors are treated as internal and not retryable — a
// handler that wants a more specific classification should check its own
// sentinel errors before falling through to this.
func writeErr(w http.ResponseWriter, err error) {
	kind, status, retryable := classify(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{OK: false, Err: &envErr{
		Kind:      kind,
		Message:   err.Error(),
		Retryable: retryable,
	}})
}

func classify(err error) (errKind, int, bool) {
	switch {
	case store.IsNotFound(err):
		return kindNotFound, http.StatusNotFound, false
	case errors.Is(err, billing.ErrChargePending):
		return kindPreconditionFailed, http.StatusConflict, true
	case errors.Is(err, errInvalidRequest):
		return kindInvalidRequest, http.StatusBadRequest, false
	default:
		return kindInternal, http.StatusInternalServerError, false
	}
}

// errInvalidRequest is wrapped by handlers rejecting malformed input
// (bad JSON body, unknown vault type, missing path param).
var errInvalidRequest = errors.New("api: invalid request")
