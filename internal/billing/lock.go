package billing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/suiftly/sealctl/internal/store"
)

// withCustomerLock runs fn inside a transaction holding customerID's
// advisory lock for the duration — the §4.5.1/§5 per-customer
// serialization primitive every billing write path goes through.
func withCustomerLock(ctx context.Context, db *store.DB, customerID string, fn func(tx *sql.Tx) error) error {
	err := store.WithTx(ctx, db, func(tx *sql.Tx) error {
		if err := store.LockCustomer(ctx, tx, customerID); err != nil {
			return err
		}
		return fn(tx)
	})
	if err != nil {
		return fmt.Errorf("billing: customer %s: %w", customerID, err)
	}
	return nil
}
