// Package derivation implements the globally unique, strictly
// monotonic per-process-group index allocator (§4.3). Allocation is a
// single atomic UPDATE...RETURNING against the SystemControl singleton
// row, so it is safe under arbitrary concurrency and rollback-safe by
// construction: nothing before commit is visible to a concurrent
// allocator.
package derivation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/suiftly/sealctl/internal/store"
)

// ProcessGroup is a cryptographic isolation namespace for derivation
// indices. Two master seeds exist today.
type ProcessGroup int

const (
	PG1 ProcessGroup = 1
	PG2 ProcessGroup = 2
)

// Allocate returns the next unused index for pg, atomically advancing
// SystemControl's counter inside tx. The caller owns the transaction —
// a rollback leaves the counter untouched, a commit makes the
// allocation permanent and irreversible: the returned index is never
// handed out again, even if the row referencing it is later
// soft-deleted.
func Allocate(ctx context.Context, tx *sql.Tx, pg ProcessGroup) (int64, error) {
	idx, err := store.AllocateDerivationIndex(ctx, tx, int(pg))
	if err != nil {
		return 0, fmt.Errorf("derivation: allocate pg%d: %w", pg, err)
	}
	return idx, nil
}
