//go:build integration

package store_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/store"
	"github.com/suiftly/sealctl/internal/testutil"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	ctx := context.Background()

	pg, err := testutil.StartPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Stop(ctx) })

	db, err := store.Open(pg.DSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, store.Migrate(ctx, db))
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, store.Migrate(context.Background(), db))
}

func TestCustomerCRUDAndAdvisoryLock(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cust := &store.Customer{ID: "cust_1", WalletAddress: "0xabc", SpendingLimitCents: 10000}
	require.NoError(t, store.CreateCustomer(ctx, db, cust))

	err := store.WithTx(ctx, db, func(tx *sql.Tx) error {
		if err := store.LockCustomer(ctx, tx, cust.ID); err != nil {
			return err
		}
		got, err := store.GetCustomerForUpdate(ctx, tx, cust.ID)
		if err != nil {
			return err
		}
		require.Equal(t, cust.WalletAddress, got.WalletAddress)
		return store.UpdateCustomerBalance(ctx, tx, cust.ID, 500, 0, sql.NullTime{})
	})
	require.NoError(t, err)

	got, err := store.GetCustomer(ctx, db, cust.ID)
	require.NoError(t, err)
	require.EqualValues(t, 500, got.BalanceCents)
}

func TestAllocateDerivationIndexIsMonotonicAndNotRecycled(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var first, second int64
	err := store.WithTx(ctx, db, func(tx *sql.Tx) error {
		sc, err := store.GetSystemControlForUpdate(ctx, tx)
		require.NoError(t, err)
		require.EqualValues(t, 1, sc.NextDerivationIndexPG1)

		first, err = store.AllocateDerivationIndex(ctx, tx, 1)
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, first)

	err = store.WithTx(ctx, db, func(tx *sql.Tx) error {
		var err error
		second, err = store.AllocateDerivationIndex(ctx, tx, 1)
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, second)
	require.Greater(t, second, first)

	// A rolled-back allocation rolls the counter back with it, so the next
	// committed allocation receives the same index.
	err = store.WithTx(ctx, db, func(tx *sql.Tx) error {
		idx, err := store.AllocateDerivationIndex(ctx, tx, 1)
		require.NoError(t, err)
		require.EqualValues(t, 3, idx)
		return sql.ErrTxDone // force rollback
	})
	require.Error(t, err)

	err = store.WithTx(ctx, db, func(tx *sql.Tx) error {
		idx, err := store.AllocateDerivationIndex(ctx, tx, 1)
		require.NoError(t, err)
		require.EqualValues(t, 3, idx, "a rolled-back allocation does not advance the counter")
		return nil
	})
	require.NoError(t, err)
}

func TestBumpVaultSeqPerVaultType(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := store.WithTx(ctx, db, func(tx *sql.Tx) error {
		smaSeq, err := store.BumpVaultSeq(ctx, tx, enum.VaultSealMainnetAPI)
		require.NoError(t, err)
		require.EqualValues(t, 1, smaSeq)

		stbSeq, err := store.BumpVaultSeq(ctx, tx, enum.VaultSealTestnetBilling)
		require.NoError(t, err)
		require.EqualValues(t, 1, stbSeq, "sma and stb sequences must be independent")

		return store.SetVaultGenerationState(ctx, tx, enum.VaultSealMainnetAPI, smaSeq, "deadbeef", 0)
	})
	require.NoError(t, err)

	sc, err := store.GetSystemControl(ctx, db)
	require.NoError(t, err)
	require.EqualValues(t, 1, sc.SMAVaultSeq)
	require.Equal(t, "deadbeef", sc.SMAVaultContentHash)
}
