package globalmanager

import (
	"context"
	"database/sql"
	"log"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/store"
)

// ReconcileOnStartup implements §4.7.3: before serving, scan the
// transmit directory for the newest valid file per vault type. If its
// seq exceeds system_control's record, system_control is brought
// forward to match (the DB may have been reset while vault files
// survived on disk). If system_control is already ahead, this logs and
// takes no destructive action — file generation always catches up on
// the next sync-all.
func (m *Manager) ReconcileOnStartup(ctx context.Context) error {
	for _, vt := range enum.VaultTypes {
		if err := m.reconcileOneVaultOnStartup(ctx, vt); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) reconcileOneVaultOnStartup(ctx context.Context, vt enum.VaultType) error {
	v, skipped, err := m.vaults.GetLatestValidVault(vt)
	if err != nil {
		return err
	}
	for _, s := range skipped {
		log.Printf("[GM] action=startup_reconcile_skip_corrupt vault=%s seq=%d err=%v", vt, s.Seq, s.Err)
	}
	if v == nil {
		log.Printf("[GM] action=startup_reconcile vault=%s status=no_files_on_disk", vt)
		return nil
	}

	return store.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		sc, err := store.GetSystemControlForUpdate(ctx, tx)
		if err != nil {
			return err
		}
		dbSeq := vaultSeqFromControl(sc, vt)

		if v.Header.Seq <= dbSeq {
			log.Printf("[GM] action=startup_reconcile vault=%s status=db_ahead_or_equal db_seq=%d disk_seq=%d", vt, dbSeq, v.Header.Seq)
			return nil
		}

		log.Printf("[GM] action=startup_reconcile vault=%s status=advancing_db db_seq=%d disk_seq=%d", vt, dbSeq, v.Header.Seq)
		return store.CompleteVaultGeneration(ctx, tx, vt, v.Header.Seq, v.Header.ContentHash, int32(v.Header.EntryCount))
	})
}

func vaultSeqFromControl(sc *store.SystemControl, vt enum.VaultType) int64 {
	switch vt {
	case enum.VaultSealMainnetAPI:
		return sc.SMAVaultSeq
	case enum.VaultSealTestnetBilling:
		return sc.STBVaultSeq
	default:
		return 0
	}
}
