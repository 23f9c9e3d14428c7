package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/suiftly/sealctl/internal/enum"
)

// ServiceInstance is one customer's subscription to one service type
// (§3, §4.5.2). Soft-deleted rows satisfy the unpaid-cancellation
// resubscribe path (SPEC_FULL.md Open Question 2): a new subscription
// within the cooldown window reuses the same id rather than allocating
// a fresh one.
type ServiceInstance struct {
	ID                         string
	CustomerID                 string
	ServiceType                string
	Tier                       enum.Tier
	ScheduledTier              sql.NullString
	State                      enum.ServiceState
	IsUserEnabled              bool
	PaidOnce                   bool
	SubscriptionChargePending  bool
	SubPendingInvoiceID        sql.NullString
	CancellationScheduledFor   sql.NullTime
	CancellationEffectiveAt    sql.NullTime
	SMAConfigChangeVaultSeq    int64
	STBConfigChangeVaultSeq    int64
	// ConfigJSON holds a gateway-config payload (e.g. IP allowlist) the
	// core does not parse — preserved verbatim per SPEC_FULL.md's
	// "dynamic payloads" design note.
	ConfigJSON                 sql.NullString
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
	DeletedAt                  sql.NullTime
}

// ConfigChangeVaultSeq returns the per-vault-type config-change sequence
// column named by vt, generalizing over the materialized sma/stb columns.
func (s *ServiceInstance) ConfigChangeVaultSeq(vt enum.VaultType) int64 {
	switch vt {
	case enum.VaultSealMainnetAPI:
		return s.SMAConfigChangeVaultSeq
	case enum.VaultSealTestnetBilling:
		return s.STBConfigChangeVaultSeq
	default:
		return 0
	}
}

func CreateServiceInstance(ctx context.Context, q Queryer, s *ServiceInstance) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO service_instances
			(id, customer_id, service_type, tier, state, is_user_enabled, paid_once)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.CustomerID, s.ServiceType, s.Tier, s.State, s.IsUserEnabled, s.PaidOnce)
	return err
}

// FindSoftDeletedServiceInstance looks for a soft-deleted instance of the
// given type for resubscription-identity reuse (Open Question 2). Callers
// check deletedAt against the cooldown window themselves.
func FindSoftDeletedServiceInstance(ctx context.Context, tx *sql.Tx, customerID, serviceType string) (*ServiceInstance, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, customer_id, service_type, tier, scheduled_tier, state, is_user_enabled,
		       paid_once, subscription_charge_pending, sub_pending_invoice_id,
		       cancellation_scheduled_for, cancellation_effective_at,
		       sma_config_change_vault_seq, stb_config_change_vault_seq, config_json,
		       created_at, updated_at, deleted_at
		FROM service_instances
		WHERE customer_id = $1 AND service_type = $2 AND deleted_at IS NOT NULL
		ORDER BY deleted_at DESC
		LIMIT 1
		FOR UPDATE
	`, customerID, serviceType)
	return scanServiceInstance(row)
}

func GetServiceInstance(ctx context.Context, q Queryer, id string) (*ServiceInstance, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, customer_id, service_type, tier, scheduled_tier, state, is_user_enabled,
		       paid_once, subscription_charge_pending, sub_pending_invoice_id,
		       cancellation_scheduled_for, cancellation_effective_at,
		       sma_config_change_vault_seq, stb_config_change_vault_seq, config_json,
		       created_at, updated_at, deleted_at
		FROM service_instances WHERE id = $1 AND deleted_at IS NULL
	`, id)
	return scanServiceInstance(row)
}

func GetServiceInstanceForUpdate(ctx context.Context, tx *sql.Tx, id string) (*ServiceInstance, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, customer_id, service_type, tier, scheduled_tier, state, is_user_enabled,
		       paid_once, subscription_charge_pending, sub_pending_invoice_id,
		       cancellation_scheduled_for, cancellation_effective_at,
		       sma_config_change_vault_seq, stb_config_change_vault_seq, config_json,
		       created_at, updated_at, deleted_at
		FROM service_instances WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, id)
	return scanServiceInstance(row)
}

// GetServiceInstanceByCustomerAndType fetches the live (non-deleted)
// instance of serviceType belonging to customerID, if any.
func GetServiceInstanceByCustomerAndType(ctx context.Context, q Queryer, customerID, serviceType string) (*ServiceInstance, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, customer_id, service_type, tier, scheduled_tier, state, is_user_enabled,
		       paid_once, subscription_charge_pending, sub_pending_invoice_id,
		       cancellation_scheduled_for, cancellation_effective_at,
		       sma_config_change_vault_seq, stb_config_change_vault_seq, config_json,
		       created_at, updated_at, deleted_at
		FROM service_instances
		WHERE customer_id = $1 AND service_type = $2 AND deleted_at IS NULL
	`, customerID, serviceType)
	return scanServiceInstance(row)
}

// ListServiceInstancesByCustomer returns every live service instance for
// a customer, ordered by service_type for deterministic API responses.
func ListServiceInstancesByCustomer(ctx context.Context, q Queryer, customerID string) ([]*ServiceInstance, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, customer_id, service_type, tier, scheduled_tier, state, is_user_enabled,
		       paid_once, subscription_charge_pending, sub_pending_invoice_id,
		       cancellation_scheduled_for, cancellation_effective_at,
		       sma_config_change_vault_seq, stb_config_change_vault_seq, config_json,
		       created_at, updated_at, deleted_at
		FROM service_instances
		WHERE customer_id = $1 AND deleted_at IS NULL
		ORDER BY service_type
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ServiceInstance
	for rows.Next() {
		s, err := scanServiceInstanceRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListEnabledServiceInstances returns every enabled instance across all
// customers — the input to GM vault generation (§4.7.2).
func ListEnabledServiceInstances(ctx context.Context, q Queryer) ([]*ServiceInstance, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, customer_id, service_type, tier, scheduled_tier, state, is_user_enabled,
		       paid_once, subscription_charge_pending, sub_pending_invoice_id,
		       cancellation_scheduled_for, cancellation_effective_at,
		       sma_config_change_vault_seq, stb_config_change_vault_seq, config_json,
		       created_at, updated_at, deleted_at
		FROM service_instances
		WHERE deleted_at IS NULL AND state = $1 AND is_user_enabled = TRUE
		ORDER BY id
	`, enum.ServiceEnabled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ServiceInstance
	for rows.Next() {
		s, err := scanServiceInstanceRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanServiceInstance(row *sql.Row) (*ServiceInstance, error) {
	var s ServiceInstance
	err := row.Scan(&s.ID, &s.CustomerID, &s.ServiceType, &s.Tier, &s.ScheduledTier, &s.State,
		&s.IsUserEnabled, &s.PaidOnce, &s.SubscriptionChargePending, &s.SubPendingInvoiceID,
		&s.CancellationScheduledFor, &s.CancellationEffectiveAt,
		&s.SMAConfigChangeVaultSeq, &s.STBConfigChangeVaultSeq, &s.ConfigJSON,
		&s.CreatedAt, &s.UpdatedAt, &s.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanServiceInstanceRows(rows *sql.Rows) (*ServiceInstance, error) {
	var s ServiceInstance
	err := rows.Scan(&s.ID, &s.CustomerID, &s.ServiceType, &s.Tier, &s.ScheduledTier, &s.State,
		&s.IsUserEnabled, &s.PaidOnce, &s.SubscriptionChargePending, &s.SubPendingInvoiceID,
		&s.CancellationScheduledFor, &s.CancellationEffectiveAt,
		&s.SMAConfigChangeVaultSeq, &s.STBConfigChangeVaultSeq, &s.ConfigJSON,
		&s.CreatedAt, &s.UpdatedAt, &s.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateServiceInstanceState persists state/tier/enablement changes.
func UpdateServiceInstanceState(ctx context.Context, q Queryer, s *ServiceInstance) error {
	_, err := q.ExecContext(ctx, `
		UPDATE service_instances
		SET tier = $2, scheduled_tier = $3, state = $4, is_user_enabled = $5, paid_once = $6,
		    subscription_charge_pending = $7, sub_pending_invoice_id = $8,
		    cancellation_scheduled_for = $9, cancellation_effective_at = $10,
		    updated_at = now()
		WHERE id = $1
	`, s.ID, s.Tier, s.ScheduledTier, s.State, s.IsUserEnabled, s.PaidOnce,
		s.SubscriptionChargePending, s.SubPendingInvoiceID,
		s.CancellationScheduledFor, s.CancellationEffectiveAt)
	return err
}

// UndeleteServiceInstance reinstates a soft-deleted instance for the
// resubscribe-within-cooldown path, resetting its lifecycle fields.
func UndeleteServiceInstance(ctx context.Context, tx *sql.Tx, s *ServiceInstance) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE service_instances
		SET deleted_at = NULL, tier = $2, state = $3, is_user_enabled = $4, paid_once = $5,
		    subscription_charge_pending = FALSE, sub_pending_invoice_id = NULL,
		    cancellation_scheduled_for = NULL, cancellation_effective_at = NULL,
		    updated_at = now()
		WHERE id = $1
	`, s.ID, s.Tier, s.State, s.IsUserEnabled, s.PaidOnce)
	return err
}

// SoftDeleteServiceInstance marks an instance deleted without removing
// the row, per the teacher's soft-delete discipline (internal/db).
func SoftDeleteServiceInstance(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE service_instances SET deleted_at = now(), updated_at = now() WHERE id = $1
	`, id)
	return err
}

// UpdateServiceInstanceConfigJSON overwrites an instance's opaque
// gateway-config payload. The caller owns validation of configJSON's
// shape; this layer stores it verbatim.
func UpdateServiceInstanceConfigJSON(ctx context.Context, q Queryer, id string, configJSON string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE service_instances SET config_json = $2, updated_at = now() WHERE id = $1
	`, id, configJSON)
	return err
}

// BumpConfigChangeVaultSeq stamps the instance's per-vault-type
// config-change sequence to seq — called by markConfigChanged (C9) right
// after a mutating API handler commits.
func BumpConfigChangeVaultSeq(ctx context.Context, q Queryer, id string, vt enum.VaultType, seq int64) error {
	var column string
	switch vt {
	case enum.VaultSealMainnetAPI:
		column = "sma_config_change_vault_seq"
	case enum.VaultSealTestnetBilling:
		column = "stb_config_change_vault_seq"
	default:
		return sql.ErrNoRows
	}
	_, err := q.ExecContext(ctx, `UPDATE service_instances SET `+column+` = $2, updated_at = now() WHERE id = $1`, id, seq)
	return err
}
