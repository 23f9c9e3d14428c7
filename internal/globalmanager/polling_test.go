//go:build integration

package globalmanager_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suiftly/sealctl/internal/clock"
	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/fleet"
	"github.com/suiftly/sealctl/internal/globalmanager"
	"github.com/suiftly/sealctl/internal/store"
)

func TestPollFleetUpsertsStatusFromReachableLM(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"type": "sma", "entries": 3, "applied": map[string]any{"seq": 5, "at": "2026-03-01T00:00:00Z"}},
		})
	}))
	defer srv.Close()

	m := globalmanager.New(globalmanager.Config{
		DB: db, Clock: clock.Real{},
		StaticEndpoints: []globalmanager.Endpoint{{LMID: "lm-reachable", URL: srv.URL}},
	})
	require.NoError(t, m.PollFleet(ctx))

	rows, err := store.ListLMStatusByVault(ctx, db, enum.VaultSealMainnetAPI)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(5), rows[0].AppliedSeq)
	require.False(t, rows[0].LastError.Valid)
}

func TestPollFleetRecordsErrorForUnreachableLMWithoutAbortingTheSweep(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	goodSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"type": "sma", "entries": 1, "applied": map[string]any{"seq": 2, "at": "2026-03-01T00:00:00Z"}},
		})
	}))
	defer goodSrv.Close()

	m := globalmanager.New(globalmanager.Config{
		DB: db, Clock: clock.Real{},
		StaticEndpoints: []globalmanager.Endpoint{
			{LMID: "lm-good", URL: goodSrv.URL},
			{LMID: "lm-down", URL: "http://127.0.0.1:1"}, // nothing listens here
		},
	})

	err := m.PollFleet(ctx)
	require.Error(t, err, "an unreachable LM must be reported")

	rows, err := store.ListLMStatusByVault(ctx, db, enum.VaultSealMainnetAPI)
	require.NoError(t, err)
	require.Len(t, rows, 2, "the reachable LM's status must still be recorded")
}

func TestPollFleetSendsFleetBearerTokenWhenSecretConfigured(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer srv.Close()

	m := globalmanager.New(globalmanager.Config{
		DB: db, Clock: clock.Real{},
		StaticEndpoints: []globalmanager.Endpoint{{LMID: "lm-1", URL: srv.URL}},
		FleetAuthSecret: "shared-secret",
	})
	require.NoError(t, m.PollFleet(ctx))

	require.Contains(t, gotAuth, "Bearer ")
	verifier := fleet.NewVerifier("shared-secret")
	sub, err := verifier.Verify(gotAuth[len("Bearer "):])
	require.NoError(t, err)
	require.Equal(t, "lm-1", sub)
}
