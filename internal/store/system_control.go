package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/suiftly/sealctl/internal/enum"
)

// SystemControl is the singleton row backing the derivation-index
// allocator (C3) and each vault type's sequence/hash/entry-count state
// (C6/C7). Every column here must only ever be read and written inside a
// transaction that also holds the relevant row lock — AllocateDerivationIndex
// and BumpVaultSeq both take it through a single atomic UPDATE ... RETURNING.
type SystemControl struct {
	NextDerivationIndexPG1 int64
	NextDerivationIndexPG2 int64

	SMANextVaultSeq       int64
	SMAMaxConfigChangeSeq int64
	SMAVaultSeq           int64
	SMAVaultContentHash   string
	SMAVaultEntries       int32

	STBNextVaultSeq       int64
	STBMaxConfigChangeSeq int64
	STBVaultSeq           int64
	STBVaultContentHash   string
	STBVaultEntries       int32
}

// GetSystemControlForUpdate locks and returns the singleton row. Callers
// must already be inside a transaction.
func GetSystemControlForUpdate(ctx context.Context, tx *sql.Tx) (*SystemControl, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT next_derivation_index_pg1, next_derivation_index_pg2,
		       sma_next_vault_seq, sma_max_config_change_seq, sma_vault_seq, sma_vault_content_hash, sma_vault_entries,
		       stb_next_vault_seq, stb_max_config_change_seq, stb_vault_seq, stb_vault_content_hash, stb_vault_entries
		FROM system_control WHERE id = 1
		FOR UPDATE
	`)
	var sc SystemControl
	err := row.Scan(&sc.NextDerivationIndexPG1, &sc.NextDerivationIndexPG2,
		&sc.SMANextVaultSeq, &sc.SMAMaxConfigChangeSeq, &sc.SMAVaultSeq, &sc.SMAVaultContentHash, &sc.SMAVaultEntries,
		&sc.STBNextVaultSeq, &sc.STBMaxConfigChangeSeq, &sc.STBVaultSeq, &sc.STBVaultContentHash, &sc.STBVaultEntries)
	if err != nil {
		return nil, fmt.Errorf("store: get system_control: %w", err)
	}
	return &sc, nil
}

// GetSystemControl returns the singleton row without locking it, for
// read-only status reporting (e.g. the sync-status API endpoint).
func GetSystemControl(ctx context.Context, q Queryer) (*SystemControl, error) {
	row := q.QueryRowContext(ctx, `
		SELECT next_derivation_index_pg1, next_derivation_index_pg2,
		       sma_next_vault_seq, sma_max_config_change_seq, sma_vault_seq, sma_vault_content_hash, sma_vault_entries,
		       stb_next_vault_seq, stb_max_config_change_seq, stb_vault_seq, stb_vault_content_hash, stb_vault_entries
		FROM system_control WHERE id = 1
	`)
	var sc SystemControl
	err := row.Scan(&sc.NextDerivationIndexPG1, &sc.NextDerivationIndexPG2,
		&sc.SMANextVaultSeq, &sc.SMAMaxConfigChangeSeq, &sc.SMAVaultSeq, &sc.SMAVaultContentHash, &sc.SMAVaultEntries,
		&sc.STBNextVaultSeq, &sc.STBMaxConfigChangeSeq, &sc.STBVaultSeq, &sc.STBVaultContentHash, &sc.STBVaultEntries)
	if err != nil {
		return nil, fmt.Errorf("store: get system_control: %w", err)
	}
	return &sc, nil
}

// AllocateDerivationIndex atomically reads and bumps the next derivation
// index for processGroup (1 or 2), returning the allocated value. The
// caller must be inside a transaction already holding the row lock via
// GetSystemControlForUpdate, or call this as the sole mutation in its tx
// — either way the UPDATE...RETURNING is itself atomic under Postgres's
// row lock, so no separate SELECT is required here (§4.3, Testable
// Properties 1/2/6).
func AllocateDerivationIndex(ctx context.Context, tx *sql.Tx, processGroup int) (int64, error) {
	var column string
	switch processGroup {
	case 1:
		column = "next_derivation_index_pg1"
	case 2:
		column = "next_derivation_index_pg2"
	default:
		return 0, fmt.Errorf("store: invalid process group %d", processGroup)
	}

	var allocated int64
	row := tx.QueryRowContext(ctx, `
		UPDATE system_control SET `+column+` = `+column+` + 1
		WHERE id = 1
		RETURNING `+column+` - 1
	`)
	if err := row.Scan(&allocated); err != nil {
		return 0, fmt.Errorf("store: allocate derivation index: %w", err)
	}
	return allocated, nil
}

// BumpVaultSeq advances vt's NextVaultSeq and returns the sequence
// number assigned to the vault file being written (§4.7.2 step 1).
func BumpVaultSeq(ctx context.Context, tx *sql.Tx, vt enum.VaultType) (int64, error) {
	column, _, _, _ := vaultColumns(vt)
	if column == "" {
		return 0, fmt.Errorf("store: unknown vault type %q", vt)
	}
	var allocated int64
	row := tx.QueryRowContext(ctx, `
		UPDATE system_control SET `+column+` = `+column+` + 1
		WHERE id = 1
		RETURNING `+column+` - 1
	`)
	if err := row.Scan(&allocated); err != nil {
		return 0, fmt.Errorf("store: bump vault seq: %w", err)
	}
	return allocated, nil
}

// SetVaultGenerationState persists the result of a completed vault
// write: the vault's own sequence number, content hash, and entry count,
// per vt (§4.7.2 steps 4-5).
func SetVaultGenerationState(ctx context.Context, tx *sql.Tx, vt enum.VaultType, seq int64, contentHash string, entries int32) error {
	_, seqCol, hashCol, entriesCol := vaultColumns(vt)
	if seqCol == "" {
		return fmt.Errorf("store: unknown vault type %q", vt)
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE system_control SET `+seqCol+` = $1, `+hashCol+` = $2, `+entriesCol+` = $3 WHERE id = 1
	`, seq, contentHash, entries)
	return err
}

// BeginVaultGeneration implements §4.7.2 steps 1-3: inside a
// transaction holding the system_control row lock, checks whether vt
// has any pending config change (MaxConfigChangeSeq > VaultSeq); if
// not, pending is false and the caller does nothing further. If there
// is pending work, NextVaultSeq is advanced to VaultSeq+2 — ahead of
// the seq about to be generated — so any markConfigChanged call that
// interleaves with this generation records a seq distinct from the one
// being written, and newSeq (VaultSeq+1) is returned for the caller to
// write the vault file at.
func BeginVaultGeneration(ctx context.Context, tx *sql.Tx, vt enum.VaultType) (newSeq int64, pending bool, err error) {
	nextSeqCol, vaultSeqCol, _, _ := vaultColumns(vt)
	maxChangeCol := maxConfigChangeColumn(vt)
	if nextSeqCol == "" {
		return 0, false, fmt.Errorf("store: unknown vault type %q", vt)
	}

	var maxChangeSeq, vaultSeq int64
	row := tx.QueryRowContext(ctx, `
		SELECT `+maxChangeCol+`, `+vaultSeqCol+` FROM system_control WHERE id = 1 FOR UPDATE
	`)
	if err := row.Scan(&maxChangeSeq, &vaultSeq); err != nil {
		return 0, false, fmt.Errorf("store: begin vault generation: %w", err)
	}
	if maxChangeSeq <= vaultSeq {
		return 0, false, nil
	}

	newSeq = vaultSeq + 1
	if _, err := tx.ExecContext(ctx, `UPDATE system_control SET `+nextSeqCol+` = $1 WHERE id = 1`, vaultSeq+2); err != nil {
		return 0, false, fmt.Errorf("store: advance next vault seq: %w", err)
	}
	return newSeq, true, nil
}

// CompleteVaultGeneration implements §4.7.2 steps 4-5: persists a
// successful vault write's seq/hash/entries and resets NextVaultSeq to
// seq+1 (collapsing the lookahead room BeginVaultGeneration reserved).
func CompleteVaultGeneration(ctx context.Context, tx *sql.Tx, vt enum.VaultType, seq int64, contentHash string, entries int32) error {
	nextSeqCol, seqCol, hashCol, entriesCol := vaultColumns(vt)
	if seqCol == "" {
		return fmt.Errorf("store: unknown vault type %q", vt)
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE system_control SET `+seqCol+` = $1, `+hashCol+` = $2, `+entriesCol+` = $3, `+nextSeqCol+` = $4 WHERE id = 1
	`, seq, contentHash, entries, seq+1)
	return err
}

// BumpMaxConfigChangeSeq advances vt's MaxConfigChangeSeq and returns the
// value assigned to a single mutating API call (markConfigChanged, C9).
func BumpMaxConfigChangeSeq(ctx context.Context, tx *sql.Tx, vt enum.VaultType) (int64, error) {
	column := maxConfigChangeColumn(vt)
	if column == "" {
		return 0, fmt.Errorf("store: unknown vault type %q", vt)
	}
	var allocated int64
	row := tx.QueryRowContext(ctx, `
		UPDATE system_control SET `+column+` = `+column+` + 1
		WHERE id = 1
		RETURNING `+column+`
	`)
	if err := row.Scan(&allocated); err != nil {
		return 0, fmt.Errorf("store: bump max config change seq: %w", err)
	}
	return allocated, nil
}

// MarkConfigChanged implements §4.9's markConfigChanged operation
// exactly: reads vt's NextVaultSeq as expectedSeq, raises MaxConfigChangeSeq
// to expectedSeq if it isn't already at least that high (a global O(1)
// pending indicator that must never regress), and returns expectedSeq for
// the caller to stamp onto the affected ServiceInstance's per-vault
// config-change column. Distinct from BumpMaxConfigChangeSeq, which
// unconditionally advances the counter by one and is used only to mark
// "something is pending" in tests that don't need the real expectedSeq
// value.
func MarkConfigChanged(ctx context.Context, tx *sql.Tx, vt enum.VaultType) (expectedSeq int64, err error) {
	nextSeqCol, _, _, _ := vaultColumns(vt)
	maxChangeCol := maxConfigChangeColumn(vt)
	if nextSeqCol == "" {
		return 0, fmt.Errorf("store: unknown vault type %q", vt)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT `+nextSeqCol+` FROM system_control WHERE id = 1 FOR UPDATE
	`)
	if err := row.Scan(&expectedSeq); err != nil {
		return 0, fmt.Errorf("store: mark config changed: read next seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE system_control SET `+maxChangeCol+` = GREATEST(`+maxChangeCol+`, $1) WHERE id = 1
	`, expectedSeq); err != nil {
		return 0, fmt.Errorf("store: mark config changed: raise max change seq: %w", err)
	}
	return expectedSeq, nil
}

func maxConfigChangeColumn(vt enum.VaultType) string {
	switch vt {
	case enum.VaultSealMainnetAPI:
		return "sma_max_config_change_seq"
	case enum.VaultSealTestnetBilling:
		return "stb_max_config_change_seq"
	default:
		return ""
	}
}

// vaultColumns returns the (next_seq, vault_seq, content_hash, entries)
// column names for vt, generalizing over the materialized sma/stb
// quintuples (SPEC_FULL.md Open Question 1).
func vaultColumns(vt enum.VaultType) (nextSeq, vaultSeq, contentHash, entries string) {
	switch vt {
	case enum.VaultSealMainnetAPI:
		return "sma_next_vault_seq", "sma_vault_seq", "sma_vault_content_hash", "sma_vault_entries"
	case enum.VaultSealTestnetBilling:
		return "stb_next_vault_seq", "stb_vault_seq", "stb_vault_content_hash", "stb_vault_entries"
	default:
		return "", "", "", ""
	}
}
