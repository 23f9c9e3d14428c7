//go:build integration

package globalmanager_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/globalmanager"
	"github.com/suiftly/sealctl/internal/store"
)

func TestMinAppliedSeqUndefinedWithoutLiveRows(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, ok, err := globalmanager.MinAppliedSeq(ctx, db, enum.VaultSealMainnetAPI, time.Now())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMinAppliedSeqIsMinimumOverLiveRows(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Now()

	require.NoError(t, store.UpsertLMStatus(ctx, db, &store.LMStatus{LMID: "lm-1", VaultType: enum.VaultSealMainnetAPI, AppliedSeq: 5, LastSeenAt: sql.NullTime{Time: now, Valid: true}}))
	require.NoError(t, store.UpsertLMStatus(ctx, db, &store.LMStatus{LMID: "lm-2", VaultType: enum.VaultSealMainnetAPI, AppliedSeq: 3, LastSeenAt: sql.NullTime{Time: now, Valid: true}}))

	seq, ok, err := globalmanager.MinAppliedSeq(ctx, db, enum.VaultSealMainnetAPI, now)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3), seq)
}

func TestMinAppliedSeqExcludesStaleAndErroredRows(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Now()

	require.NoError(t, store.UpsertLMStatus(ctx, db, &store.LMStatus{LMID: "lm-live", VaultType: enum.VaultSealMainnetAPI, AppliedSeq: 7, LastSeenAt: sql.NullTime{Time: now, Valid: true}}))
	require.NoError(t, store.UpsertLMStatus(ctx, db, &store.LMStatus{LMID: "lm-stale", VaultType: enum.VaultSealMainnetAPI, AppliedSeq: 1, LastSeenAt: sql.NullTime{Time: now.Add(-time.Hour), Valid: true}}))
	require.NoError(t, store.RecordLMStatusError(ctx, db, "lm-erroring", enum.VaultSealMainnetAPI, now, "boom"))

	seq, ok, err := globalmanager.MinAppliedSeq(ctx, db, enum.VaultSealMainnetAPI, now)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(7), seq, "only lm-live should count")
}

func TestIsSyncedComparesAgainstFleetWideMinimum(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Now()

	require.NoError(t, store.UpsertLMStatus(ctx, db, &store.LMStatus{LMID: "lm-1", VaultType: enum.VaultSealMainnetAPI, AppliedSeq: 10, LastSeenAt: sql.NullTime{Time: now, Valid: true}}))

	synced, err := globalmanager.IsSynced(ctx, db, enum.VaultSealMainnetAPI, 10, now)
	require.NoError(t, err)
	require.True(t, synced)

	synced, err = globalmanager.IsSynced(ctx, db, enum.VaultSealMainnetAPI, 11, now)
	require.NoError(t, err)
	require.False(t, synced)
}

func TestRecordLMStatusErrorPreservesPriorAppliedSeq(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Now()

	require.NoError(t, store.UpsertLMStatus(ctx, db, &store.LMStatus{LMID: "lm-1", VaultType: enum.VaultSealMainnetAPI, AppliedSeq: 42, LastSeenAt: sql.NullTime{Time: now, Valid: true}}))
	require.NoError(t, store.RecordLMStatusError(ctx, db, "lm-1", enum.VaultSealMainnetAPI, now.Add(time.Second), "transport timeout"))

	rows, err := store.ListLMStatusByVault(ctx, db, enum.VaultSealMainnetAPI)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(42), rows[0].AppliedSeq, "a failed poll must not reset a previously observed applied_seq")
	require.True(t, rows[0].LastError.Valid)
}
