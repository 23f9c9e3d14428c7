package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/globalmanager"
)

// handleSyncStatus implements "GET /v1/customers/{id}/sync-status?vault=sma&seq=42"
// (§4.7.5): reports whether seq is at or below the fleet-wide minimum
// applied seq for vault, i.e. whether every live LM has caught up to the
// config change that produced it.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	_ = chi.URLParam(r, "customerID")

	vaultParam := r.URL.Query().Get("vault")
	vt, ok := enum.VaultTypeForService(vaultParam)
	if !ok {
		writeErr(w, fmt.Errorf("%w: unknown vault type %q", errInvalidRequest, vaultParam))
		return
	}

	seqParam := r.URL.Query().Get("seq")
	seq, err := strconv.ParseInt(seqParam, 10, 64)
	if err != nil {
		writeErr(w, fmt.Errorf("%w: seq must be a number", errInvalidRequest))
		return
	}

	synced, err := globalmanager.IsSynced(r.Context(), s.db, vt, seq, time.Now())
	if err != nil {
		writeErr(w, err)
		return
	}

	writeOK(w, http.StatusOK, map[string]interface{}{
		"vault":  string(vt),
		"seq":    seq,
		"synced": synced,
	})
}
