package globalmanager

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/store"
	"github.com/suiftly/sealctl/internal/vault"
)

// gatewayEntry is the opaque per-customer payload a vault file's mapping
// holds (§3's "mapping from string key ... to opaque string payload").
// One entry per customer with at least one enabled, user-enabled key for
// the vault's service type.
type gatewayEntry struct {
	CustomerID string       `json:"customer_id"`
	Keys       []keyPayload `json:"keys"`
}

type keyPayload struct {
	DerivationIndex int64  `json:"derivation_index"`
	ProcessGroup    int16  `json:"process_group"`
	PublicKey       string `json:"public_key"`
}

func mappingKey(customerID string) string {
	return "customer:" + customerID
}

// syncAll runs §4.7.2 for every configured vault type.
func (m *Manager) syncAll(ctx context.Context) error {
	for _, vt := range enum.VaultTypes {
		if err := m.syncOneVault(ctx, vt); err != nil {
			return fmt.Errorf("globalmanager: sync-all %s: %w", vt, err)
		}
	}
	return nil
}

func (m *Manager) syncOneVault(ctx context.Context, vt enum.VaultType) error {
	var (
		newSeq  int64
		mapping map[string]string
		meta    vault.Meta
	)

	err := store.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		seq, pending, err := store.BeginVaultGeneration(ctx, tx, vt)
		if err != nil {
			return err
		}
		if !pending {
			newSeq = 0
			return nil
		}

		entries, err := assembleMapping(ctx, tx, vt)
		if err != nil {
			return err
		}

		newSeq = seq
		mapping = entries
		meta = vault.Meta{PG: 0, Source: "global-manager"}
		return nil
	})
	if err != nil {
		return err
	}
	if newSeq == 0 {
		return nil // nothing pending (step 1's O(1) check)
	}

	contentHash, entryCount, err := writeVaultFile(m.vaults, vt, newSeq, mapping, meta)
	if err != nil {
		return fmt.Errorf("write vault file: %w", err)
	}

	return store.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		return store.CompleteVaultGeneration(ctx, tx, vt, newSeq, contentHash, int32(entryCount))
	})
}

// writeVaultFile writes mapping via the vault store and returns the
// content hash/entry count the caller persists to system_control.
func writeVaultFile(vaults *vault.Store, vt enum.VaultType, seq int64, mapping map[string]string, meta vault.Meta) (string, int, error) {
	path, err := vaults.Write(vt, seq, mapping, meta)
	if err != nil {
		return "", 0, err
	}
	v, err := vaults.LoadBySeq(vt, seq)
	if err != nil {
		return "", 0, err
	}
	if v == nil {
		return "", 0, fmt.Errorf("globalmanager: vault file missing immediately after write: %s", path)
	}
	log.Printf("[GM] action=vault_write vault=%s seq=%d entries=%d path=%s", vt, seq, v.Header.EntryCount, path)
	return v.Header.ContentHash, v.Header.EntryCount, nil
}

// assembleMapping builds the gateway entry mapping for vt from every
// enabled, user-enabled seal key belonging to an enabled service
// instance of vt's service type.
func assembleMapping(ctx context.Context, tx *sql.Tx, vt enum.VaultType) (map[string]string, error) {
	keys, err := store.ListEnabledSealKeys(ctx, tx)
	if err != nil {
		return nil, err
	}

	byCustomer := make(map[string][]keyPayload)
	for _, k := range keys {
		inst, err := store.GetServiceInstance(ctx, tx, k.InstanceID)
		if err != nil {
			return nil, fmt.Errorf("globalmanager: load instance %s for key %s: %w", k.InstanceID, k.ID, err)
		}
		instVault, ok := enum.VaultTypeForService(inst.ServiceType)
		if !ok || instVault != vt {
			continue
		}
		byCustomer[k.CustomerID] = append(byCustomer[k.CustomerID], keyPayload{
			DerivationIndex: k.DerivationIndex,
			ProcessGroup:    k.ProcessGroup,
			PublicKey:       k.PublicKey,
		})
	}

	mapping := make(map[string]string, len(byCustomer))
	for customerID, keyList := range byCustomer {
		entry := gatewayEntry{CustomerID: customerID, Keys: keyList}
		payload, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		mapping[mappingKey(customerID)] = string(payload)
	}
	return mapping, nil
}
