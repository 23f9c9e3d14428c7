package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/suiftly/sealctl/internal/enum"
)

// LMStatus is the GM's last-known view of one LM's handling of one vault
// type (§4.7.4/§4.7.5): how far it has applied, what it is mid-processing,
// and when it was last reachable.
type LMStatus struct {
	LMID          string
	VaultType     enum.VaultType
	AppliedSeq    int64
	ProcessingSeq sql.NullInt64
	Entries       int32
	LastSeenAt    sql.NullTime
	LastError     sql.NullString
}

// UpsertLMStatus records the result of a single GM poll of one LM.
func UpsertLMStatus(ctx context.Context, q Queryer, s *LMStatus) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO lm_status (lm_id, vault_type, applied_seq, processing_seq, entries, last_seen_at, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (lm_id, vault_type) DO UPDATE
		SET applied_seq = EXCLUDED.applied_seq,
		    processing_seq = EXCLUDED.processing_seq,
		    entries = EXCLUDED.entries,
		    last_seen_at = EXCLUDED.last_seen_at,
		    last_error = EXCLUDED.last_error
	`, s.LMID, s.VaultType, s.AppliedSeq, s.ProcessingSeq, s.Entries, s.LastSeenAt, s.LastError)
	return err
}

// RecordLMStatusError upserts a poll failure without disturbing any
// previously recorded applied_seq/entries — a poll timeout or transport
// error says nothing about what the LM had actually applied last time
// it was reachable, so those columns must survive untouched while
// last_seen_at/last_error mark the row stale for freshness purposes.
func RecordLMStatusError(ctx context.Context, q Queryer, lmID string, vt enum.VaultType, seenAt time.Time, errMsg string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO lm_status (lm_id, vault_type, applied_seq, processing_seq, entries, last_seen_at, last_error)
		VALUES ($1, $2, 0, NULL, 0, $3, $4)
		ON CONFLICT (lm_id, vault_type) DO UPDATE
		SET last_seen_at = EXCLUDED.last_seen_at,
		    last_error = EXCLUDED.last_error
	`, lmID, vt, seenAt, errMsg)
	return err
}

// ListLMStatusByVault returns every LM's last-known status for vt,
// ordered by lm_id for deterministic minAppliedSeq computation (§4.7.5).
func ListLMStatusByVault(ctx context.Context, q Queryer, vt enum.VaultType) ([]*LMStatus, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT lm_id, vault_type, applied_seq, processing_seq, entries, last_seen_at, last_error
		FROM lm_status WHERE vault_type = $1
		ORDER BY lm_id
	`, vt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*LMStatus
	for rows.Next() {
		var s LMStatus
		if err := rows.Scan(&s.LMID, &s.VaultType, &s.AppliedSeq, &s.ProcessingSeq, &s.Entries, &s.LastSeenAt, &s.LastError); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// ListFreshLMStatus returns only the LMs seen within freshness of asOf —
// the GM's "is the fleet in sync" computation (§4.7.5) excludes stale
// entries rather than treating them as blocking.
func ListFreshLMStatus(ctx context.Context, q Queryer, vt enum.VaultType, asOf time.Time, freshness time.Duration) ([]*LMStatus, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT lm_id, vault_type, applied_seq, processing_seq, entries, last_seen_at, last_error
		FROM lm_status WHERE vault_type = $1 AND last_seen_at >= $2 AND last_error IS NULL
		ORDER BY lm_id
	`, vt, asOf.Add(-freshness))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*LMStatus
	for rows.Next() {
		var s LMStatus
		if err := rows.Scan(&s.LMID, &s.VaultType, &s.AppliedSeq, &s.ProcessingSeq, &s.Entries, &s.LastSeenAt, &s.LastError); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
