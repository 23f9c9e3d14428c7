package localmanager

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suiftly/sealctl/internal/clock"
	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/fieldcipher"
	"github.com/suiftly/sealctl/internal/vault"
)

func newTestHandler(t *testing.T) (*VaultHandler, *vault.Store, *clock.Mock) {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	cipher, err := fieldcipher.New(key)
	require.NoError(t, err)

	store := vault.NewStore(t.TempDir(), map[enum.VaultType]*fieldcipher.Cipher{enum.VaultSealMainnetAPI: cipher})
	clk := clock.NewMock(clock.Real{}.Now())
	return NewVaultHandler(enum.VaultSealMainnetAPI, store, clk), store, clk
}

func TestCheckForUpdateNoOpsWithoutNewerFile(t *testing.T) {
	h, _, _ := newTestHandler(t)
	require.NoError(t, h.CheckForUpdate(context.Background(), nil))
	require.False(t, h.Snapshot().HasApplied)
}

func TestCheckForUpdatePromotesOnSuccess(t *testing.T) {
	h, store, _ := newTestHandler(t)
	_, err := store.Write(enum.VaultSealMainnetAPI, 1, map[string]string{"customer:c1": "payload"}, vault.Meta{Source: "test"})
	require.NoError(t, err)

	require.NoError(t, h.CheckForUpdate(context.Background(), nil))

	snap := h.Snapshot()
	require.True(t, snap.HasApplied)
	require.Equal(t, int64(1), snap.AppliedSeq)
	require.False(t, snap.Processing)
	require.Empty(t, snap.LastError)
}

func TestCheckForUpdateRetainsActiveSeqOnApplyFailure(t *testing.T) {
	h, store, _ := newTestHandler(t)
	_, err := store.Write(enum.VaultSealMainnetAPI, 1, map[string]string{"customer:c1": "payload"}, vault.Meta{Source: "test"})
	require.NoError(t, err)
	require.NoError(t, h.CheckForUpdate(context.Background(), nil))

	_, err = store.Write(enum.VaultSealMainnetAPI, 2, map[string]string{"customer:c1": "payload2"}, vault.Meta{Source: "test"})
	require.NoError(t, err)

	failingApply := func(context.Context, *vault.Vault) error { return errors.New("downstream apply failed") }
	applyErr := h.CheckForUpdate(context.Background(), failingApply)
	require.Error(t, applyErr)

	snap := h.Snapshot()
	require.Equal(t, int64(1), snap.AppliedSeq, "activeSeq must be retained on failure")
	require.False(t, snap.Processing, "processingSeq must be cleared on failure")
	require.Equal(t, "downstream apply failed", snap.LastError)
}

func TestCheckForUpdateClearsPriorErrorOnNextSuccess(t *testing.T) {
	h, store, _ := newTestHandler(t)
	_, err := store.Write(enum.VaultSealMainnetAPI, 1, map[string]string{"customer:c1": "payload"}, vault.Meta{Source: "test"})
	require.NoError(t, err)
	failingApply := func(context.Context, *vault.Vault) error { return errors.New("boom") }
	require.Error(t, h.CheckForUpdate(context.Background(), failingApply))
	require.NotEmpty(t, h.Snapshot().LastError)

	require.NoError(t, h.CheckForUpdate(context.Background(), nil))
	snap := h.Snapshot()
	require.Equal(t, int64(1), snap.AppliedSeq)
	require.Empty(t, snap.LastError)
}

func TestPreviousTracksSupersededVersion(t *testing.T) {
	h, store, _ := newTestHandler(t)
	_, err := store.Write(enum.VaultSealMainnetAPI, 1, map[string]string{"customer:c1": "v1"}, vault.Meta{Source: "test"})
	require.NoError(t, err)
	require.NoError(t, h.CheckForUpdate(context.Background(), nil))
	require.Nil(t, h.Previous())

	_, err = store.Write(enum.VaultSealMainnetAPI, 2, map[string]string{"customer:c1": "v2"}, vault.Meta{Source: "test"})
	require.NoError(t, err)
	require.NoError(t, h.CheckForUpdate(context.Background(), nil))

	require.NotNil(t, h.Previous())
	require.Equal(t, int64(1), h.Previous().Header.Seq)
	require.Equal(t, int64(2), h.Active().Header.Seq)
}
