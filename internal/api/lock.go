package api

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/suiftly/sealctl/internal/store"
)

// withCustomerLock runs fn inside a transaction holding customerID's
// advisory lock, generalizing internal/billing's package-private helper
// of the same name for the handlers here that touch store directly
// (SealKey allocation, gateway-config mutation) instead of going through
// billing.Engine, which already takes this lock itself.
func withCustomerLock(ctx context.Context, db *store.DB, customerID string, fn func(tx *sql.Tx) error) error {
	err := store.WithTx(ctx, db, func(tx *sql.Tx) error {
		if err := store.LockCustomer(ctx, tx, customerID); err != nil {
			return err
		}
		return fn(tx)
	})
	if err != nil {
		return fmt.Errorf("api: customer %s: %w", customerID, err)
	}
	return nil
}
