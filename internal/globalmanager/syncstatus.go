package globalmanager

import (
	"context"
	"time"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/store"
)

// freshnessWindow is how recently an LM must have been seen, with no
// error, to count toward minAppliedSeq (§4.7.4).
const freshnessWindow = 30 * time.Second

// MinAppliedSeq returns the fleet-wide minimum appliedSeq over live rows
// for vt (§4.7.4). ok is false if no live rows exist, meaning the
// minimum is undefined rather than zero.
func MinAppliedSeq(ctx context.Context, q store.Queryer, vt enum.VaultType, now time.Time) (seq int64, ok bool, err error) {
	rows, err := store.ListFreshLMStatus(ctx, q, vt, now, freshnessWindow)
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	min := rows[0].AppliedSeq
	for _, r := range rows[1:] {
		if r.AppliedSeq < min {
			min = r.AppliedSeq
		}
	}
	return min, true, nil
}

// IsSynced answers §4.7.5's "is change <seq> live everywhere" question
// for vault vt: a configChangeVaultSeq is synced when it is at most the
// fleet-wide minAppliedSeq. An undefined minAppliedSeq (no live LMs)
// means nothing is confirmed synced yet.
func IsSynced(ctx context.Context, q store.Queryer, vt enum.VaultType, configChangeSeq int64, now time.Time) (bool, error) {
	minSeq, ok, err := MinAppliedSeq(ctx, q, vt, now)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return configChangeSeq <= minSeq, nil
}

// SyncStatusForInstance answers the GET sync-status endpoint (§4.9) for
// a single service instance and vault type, looking up its recorded
// configChangeVaultSeq.
func SyncStatusForInstance(ctx context.Context, db *store.DB, instanceID string, vt enum.VaultType, now time.Time) (synced bool, seq int64, err error) {
	inst, err := store.GetServiceInstance(ctx, db, instanceID)
	if err != nil {
		return false, 0, err
	}
	seq = inst.ConfigChangeVaultSeq(vt)
	synced, err = IsSynced(ctx, db.DB, vt, seq, now)
	return synced, seq, err
}
