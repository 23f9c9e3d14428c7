package localmanager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/fleet"
	"github.com/suiftly/sealctl/internal/vault"
)

func TestHealthHandlerReportsUnappliedVaultAsNull(t *testing.T) {
	h, _, _ := newTestHandler(t)
	m := &Manager{handlers: map[enum.VaultType]*VaultHandler{enum.VaultSealMainnetAPI: h}}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	m.HealthHandler().ServeHTTP(w, req)

	var statuses []healthVaultStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statuses))
	require.Len(t, statuses, 1)
	require.Equal(t, "sma", statuses[0].Type)
	require.Nil(t, statuses[0].Applied)
	require.Nil(t, statuses[0].Processing)
}

func TestHealthHandlerReportsAppliedVersion(t *testing.T) {
	h, store, _ := newTestHandler(t)
	_, err := store.Write(enum.VaultSealMainnetAPI, 3, map[string]string{"customer:c1": "v"}, vault.Meta{Source: "test"})
	require.NoError(t, err)
	require.NoError(t, h.CheckForUpdate(context.Background(), nil))

	m := &Manager{handlers: map[enum.VaultType]*VaultHandler{enum.VaultSealMainnetAPI: h}}
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	m.HealthHandler().ServeHTTP(w, req)

	var statuses []healthVaultStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statuses))
	require.Len(t, statuses, 1)
	require.NotNil(t, statuses[0].Applied)
	require.Equal(t, int64(3), statuses[0].Applied.Seq)
}

func TestAuthenticatedHealthHandlerRejectsMissingBearer(t *testing.T) {
	h, _, _ := newTestHandler(t)
	m := &Manager{
		handlers: map[enum.VaultType]*VaultHandler{enum.VaultSealMainnetAPI: h},
		verifier: fleet.NewVerifier("fleet-secret"),
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	m.AuthenticatedHealthHandler().ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticatedHealthHandlerAllowsValidBearer(t *testing.T) {
	h, _, _ := newTestHandler(t)
	m := &Manager{
		handlers: map[enum.VaultType]*VaultHandler{enum.VaultSealMainnetAPI: h},
		verifier: fleet.NewVerifier("fleet-secret"),
	}

	issuer := fleet.NewTokenIssuer("fleet-secret")
	token, err := issuer.Mint("gm-1", h.clock.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	m.AuthenticatedHealthHandler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}
