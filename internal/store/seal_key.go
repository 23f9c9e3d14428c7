package store

import (
	"context"
	"database/sql"
	"time"
)

// SealKey is one derived key-pair entry exposed to a vault (§4.2/§4.3).
// DerivationIndex is allocated once via AllocateDerivationIndex and never
// reused, even after the key is soft-deleted.
type SealKey struct {
	ID              string
	CustomerID      string
	InstanceID      string
	DerivationIndex int64
	ProcessGroup    int16
	PublicKey       string
	IsUserEnabled   bool
	CreatedAt       time.Time
	DeletedAt       sql.NullTime
}

func CreateSealKey(ctx context.Context, q Queryer, k *SealKey) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO seal_keys (id, customer_id, instance_id, derivation_index, process_group, public_key, is_user_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, k.ID, k.CustomerID, k.InstanceID, k.DerivationIndex, k.ProcessGroup, k.PublicKey, k.IsUserEnabled)
	return err
}

func GetSealKey(ctx context.Context, q Queryer, id string) (*SealKey, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, customer_id, instance_id, derivation_index, process_group, public_key, is_user_enabled, created_at, deleted_at
		FROM seal_keys WHERE id = $1 AND deleted_at IS NULL
	`, id)
	return scanSealKey(row)
}

// ListSealKeysByInstance returns every live key belonging to instanceID.
func ListSealKeysByInstance(ctx context.Context, q Queryer, instanceID string) ([]*SealKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, customer_id, instance_id, derivation_index, process_group, public_key, is_user_enabled, created_at, deleted_at
		FROM seal_keys WHERE instance_id = $1 AND deleted_at IS NULL
		ORDER BY derivation_index
	`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SealKey
	for rows.Next() {
		var k SealKey
		if err := rows.Scan(&k.ID, &k.CustomerID, &k.InstanceID, &k.DerivationIndex, &k.ProcessGroup,
			&k.PublicKey, &k.IsUserEnabled, &k.CreatedAt, &k.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}

// ListEnabledSealKeys returns every live, user-enabled key across all
// customers, belonging to an enabled service instance — the row set a
// vault file's entries are built from (§4.7.2).
func ListEnabledSealKeys(ctx context.Context, q Queryer) ([]*SealKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT sk.id, sk.customer_id, sk.instance_id, sk.derivation_index, sk.process_group, sk.public_key, sk.is_user_enabled, sk.created_at, sk.deleted_at
		FROM seal_keys sk
		JOIN service_instances si ON si.id = sk.instance_id
		WHERE sk.deleted_at IS NULL AND sk.is_user_enabled = TRUE
		  AND si.deleted_at IS NULL AND si.state = 'enabled' AND si.is_user_enabled = TRUE
		ORDER BY sk.derivation_index
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SealKey
	for rows.Next() {
		var k SealKey
		if err := rows.Scan(&k.ID, &k.CustomerID, &k.InstanceID, &k.DerivationIndex, &k.ProcessGroup,
			&k.PublicKey, &k.IsUserEnabled, &k.CreatedAt, &k.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}

func scanSealKey(row *sql.Row) (*SealKey, error) {
	var k SealKey
	err := row.Scan(&k.ID, &k.CustomerID, &k.InstanceID, &k.DerivationIndex, &k.ProcessGroup,
		&k.PublicKey, &k.IsUserEnabled, &k.CreatedAt, &k.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// SetSealKeyEnabled toggles is_user_enabled without affecting derivation
// index allocation.
func SetSealKeyEnabled(ctx context.Context, q Queryer, id string, enabled bool) error {
	_, err := q.ExecContext(ctx, `UPDATE seal_keys SET is_user_enabled = $2 WHERE id = $1`, id, enabled)
	return err
}

// SoftDeleteSealKey marks a key deleted. Its derivation index is never
// recycled (Testable Property: no-recycling).
func SoftDeleteSealKey(ctx context.Context, q Queryer, id string) error {
	_, err := q.ExecContext(ctx, `UPDATE seal_keys SET deleted_at = now() WHERE id = $1`, id)
	return err
}
