package localmanager

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/fleet"
)

// healthVaultStatus is the wire shape of one element of the /api/health
// response (§4.8.2). Field names and nesting mirror
// internal/globalmanager/polling.go's healthVaultStatus decode type
// exactly — the two sides of the same contract, written independently
// from the same spec. They share only their JSON tags; nothing checks
// them against each other at compile time.
type healthVaultStatus struct {
	Type    string `json:"type"`
	Entries int    `json:"entries"`
	Applied *struct {
		Seq int64 `json:"seq"`
		At  string `json:"at"`
	} `json:"applied"`
	Processing *struct {
		Seq       int64  `json:"seq"`
		StartedAt string `json:"started_at"`
		Error     string `json:"error"`
	} `json:"processing"`
}

// HealthHandler returns an http.HandlerFunc answering §4.8.2's health
// endpoint: one element per installed vault type, in stable order. If
// verifier is configured (m.verifier non-nil), the handler is expected
// to already be wrapped in fleet.RequireBearer by the caller — see
// cmd/lm's server wiring.
func (m *Manager) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := make([]healthVaultStatus, 0, len(m.handlers))
		for _, vt := range orderedVaultTypes(m.handlers) {
			snap := m.handlers[vt].Snapshot()
			hs := healthVaultStatus{Type: string(snap.Type), Entries: snap.Entries}
			if snap.HasApplied {
				hs.Applied = &struct {
					Seq int64  `json:"seq"`
					At  string `json:"at"`
				}{Seq: snap.AppliedSeq, At: snap.AppliedAt.Format(timeLayout)}
			}
			if snap.Processing || snap.LastError != "" {
				hs.Processing = &struct {
					Seq       int64  `json:"seq"`
					StartedAt string `json:"started_at"`
					Error     string `json:"error"`
				}{Seq: snap.ProcSeq, StartedAt: snap.StartedAt.Format(timeLayout), Error: snap.LastError}
			}
			statuses = append(statuses, hs)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statuses)
	}
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// AuthenticatedHealthHandler wraps HealthHandler in fleet.RequireBearer
// when a fleet auth secret is configured, satisfying §8 ADD 9: an
// unsigned or wrongly-signed poll is rejected with 401 before this
// handler ever runs, so it has no side effect on any VaultHandler's
// state. With no secret configured (development only) it returns the
// handler unwrapped.
func (m *Manager) AuthenticatedHealthHandler() http.Handler {
	h := m.HealthHandler()
	if m.verifier == nil {
		return h
	}
	return fleet.RequireBearer(m.verifier, h)
}

func orderedVaultTypes(handlers map[enum.VaultType]*VaultHandler) []enum.VaultType {
	types := make([]enum.VaultType, 0, len(handlers))
	for vt := range handlers {
		types = append(types, vt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
