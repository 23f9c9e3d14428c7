package store

import (
	"context"
	"fmt"
)

// schemaStatements creates every table in §3's data model. It is written
// as a flat list of idempotent DDL statements rather than a migration
// framework with up/down steps — the teacher's own migrate subcommand
// (cmd/server "migrate") is similarly a single
// client.Schema.Create(ctx) auto-migration call; this is the raw-SQL
// equivalent now that ent's schema package is gone (see DESIGN.md).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		wallet_address TEXT NOT NULL UNIQUE,
		balance_cents BIGINT NOT NULL DEFAULT 0,
		spending_limit_cents BIGINT NOT NULL DEFAULT 0,
		paid_once BOOLEAN NOT NULL DEFAULT FALSE,
		escrow_contract_id TEXT,
		current_period_start TIMESTAMPTZ,
		current_period_charged_cents BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS service_instances (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		service_type TEXT NOT NULL,
		tier TEXT NOT NULL,
		scheduled_tier TEXT,
		state TEXT NOT NULL,
		is_user_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		paid_once BOOLEAN NOT NULL DEFAULT FALSE,
		subscription_charge_pending BOOLEAN NOT NULL DEFAULT FALSE,
		sub_pending_invoice_id TEXT,
		cancellation_scheduled_for TIMESTAMPTZ,
		cancellation_effective_at TIMESTAMPTZ,
		sma_config_change_vault_seq BIGINT NOT NULL DEFAULT 0,
		stb_config_change_vault_seq BIGINT NOT NULL DEFAULT 0,
		config_json TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at TIMESTAMPTZ,
		UNIQUE (customer_id, service_type, deleted_at)
	)`,
	`CREATE TABLE IF NOT EXISTS billing_records (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		status TEXT NOT NULL,
		amount_usd_cents BIGINT NOT NULL DEFAULT 0,
		amount_paid_usd_cents BIGINT NOT NULL DEFAULT 0,
		billing_period_start TIMESTAMPTZ NOT NULL,
		due_date TIMESTAMPTZ,
		payment_action_url TEXT,
		tx_digest TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS invoice_line_items (
		id TEXT PRIMARY KEY,
		billing_record_id TEXT NOT NULL REFERENCES billing_records(id),
		item_type TEXT NOT NULL,
		service_type TEXT,
		quantity NUMERIC NOT NULL DEFAULT 1,
		unit_price_usd_cents BIGINT NOT NULL DEFAULT 0,
		amount_usd_cents BIGINT NOT NULL DEFAULT 0,
		credit_month TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS customer_credits (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		remaining_amount_usd_cents BIGINT NOT NULL,
		expires_at TIMESTAMPTZ,
		source_reason TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS invoice_payments (
		id TEXT PRIMARY KEY,
		billing_record_id TEXT NOT NULL REFERENCES billing_records(id),
		source_type TEXT NOT NULL,
		reference_id TEXT,
		amount_usd_cents BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS escrow_transactions (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		kind TEXT NOT NULL,
		tx_digest TEXT,
		amount_usd_cents BIGINT NOT NULL,
		success BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS seal_keys (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		instance_id TEXT NOT NULL REFERENCES service_instances(id),
		derivation_index BIGINT NOT NULL,
		process_group SMALLINT NOT NULL,
		public_key TEXT NOT NULL,
		is_user_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at TIMESTAMPTZ,
		UNIQUE (process_group, derivation_index)
	)`,
	`CREATE TABLE IF NOT EXISTS lm_status (
		lm_id TEXT NOT NULL,
		vault_type TEXT NOT NULL,
		applied_seq BIGINT NOT NULL DEFAULT 0,
		processing_seq BIGINT,
		entries INTEGER NOT NULL DEFAULT 0,
		last_seen_at TIMESTAMPTZ,
		last_error TEXT,
		PRIMARY KEY (lm_id, vault_type)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log_entries (
		id TEXT PRIMARY KEY,
		customer_id TEXT,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		detail TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// SystemControl is a singleton row (id=1). Every vault type's column
	// quintuple is materialized explicitly per SPEC_FULL.md §3 ADD.
	`CREATE TABLE IF NOT EXISTS system_control (
		id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		next_derivation_index_pg1 BIGINT NOT NULL DEFAULT 1,
		next_derivation_index_pg2 BIGINT NOT NULL DEFAULT 1,
		sma_next_vault_seq BIGINT NOT NULL DEFAULT 1,
		sma_max_config_change_seq BIGINT NOT NULL DEFAULT 0,
		sma_vault_seq BIGINT NOT NULL DEFAULT 0,
		sma_vault_content_hash TEXT NOT NULL DEFAULT '',
		sma_vault_entries INTEGER NOT NULL DEFAULT 0,
		stb_next_vault_seq BIGINT NOT NULL DEFAULT 1,
		stb_max_config_change_seq BIGINT NOT NULL DEFAULT 0,
		stb_vault_seq BIGINT NOT NULL DEFAULT 0,
		stb_vault_content_hash TEXT NOT NULL DEFAULT '',
		stb_vault_entries INTEGER NOT NULL DEFAULT 0
	)`,
	`INSERT INTO system_control (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
}

// Migrate creates every table in the data model if it does not already
// exist, and seeds the SystemControl singleton row.
func Migrate(ctx context.Context, db *DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate statement %d: %w", i, err)
		}
	}
	return nil
}
