//go:build integration

package derivation_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suiftly/sealctl/internal/derivation"
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

// TestAllocateConcurrentIsPairwiseDistinct covers Testable Property
// "10, 50, or mixed-PG concurrent callers must receive pairwise-distinct
// indices" (§4.3, Scenario S6).
func TestAllocateConcurrentIsPairwiseDistinct(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const n = 50
	results := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithTx(ctx, db, func(tx *sql.Tx) error {
				idx, err := derivation.Allocate(ctx, tx, derivation.PG1)
				if err != nil {
					return err
				}
				results <- idx
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool, n)
	for idx := range results {
		require.False(t, seen[idx], "index %d allocated twice", idx)
		seen[idx] = true
	}
	require.Len(t, seen, n)
}

func TestAllocateRollbackSafe(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sentinel := errors.New("force rollback")
	err := store.WithTx(ctx, db, func(tx *sql.Tx) error {
		idx, err := derivation.Allocate(ctx, tx, derivation.PG2)
		require.NoError(t, err)
		require.EqualValues(t, 1, idx)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	err = store.WithTx(ctx, db, func(tx *sql.Tx) error {
		idx, err := derivation.Allocate(ctx, tx, derivation.PG2)
		require.NoError(t, err)
		require.EqualValues(t, 1, idx, "rolled-back allocation must be reusable")
		return nil
	})
	require.NoError(t, err)
}

func TestAllocatePGIsolation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var pg1First, pg2First int64
	err := store.WithTx(ctx, db, func(tx *sql.Tx) error {
		var err error
		pg1First, err = derivation.Allocate(ctx, tx, derivation.PG1)
		if err != nil {
			return err
		}
		pg2First, err = derivation.Allocate(ctx, tx, derivation.PG2)
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, pg1First)
	require.EqualValues(t, 1, pg2First, "PG2 counter is independent of PG1")
}
