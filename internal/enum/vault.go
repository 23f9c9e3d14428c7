package enum

// VaultType is a 3-character code "{service}{network}{purpose}".
//
// Per SPEC_FULL.md's resolution of Open Question 1, every vault type gets
// the full SystemControl column quintuple (NextVaultSeq/
// MaxConfigChangeSeq/VaultSeq/VaultContentHash/VaultEntries) and the
// matching ServiceInstance.<type>ConfigChangeVaultSeq column — this repo
// materializes two: sma and stb.
type VaultType string

const (
	// VaultSealMainnetAPI is the production gateway config bundle.
	VaultSealMainnetAPI VaultType = "sma"
	// VaultSealTestnetBilling is the testnet billing-config bundle.
	VaultSealTestnetBilling VaultType = "stb"
)

// VaultTypes lists every configured vault type, in a stable order used
// wherever the GM/API must iterate "all vault types".
var VaultTypes = []VaultType{VaultSealMainnetAPI, VaultSealTestnetBilling}

// Valid reports whether v is one of the configured vault types.
func (v VaultType) Valid() bool {
	for _, t := range VaultTypes {
		if t == v {
			return true
		}
	}
	return false
}

// VaultTypeForService returns the vault a given ServiceInstance's
// service_type maps to. Service types are named identically to vault
// types in this repo (Open Question 1's per-vault-column resolution
// assumes a 1:1 shape, and billing's own tests already subscribe
// customers to "sma"/"stb" directly rather than a separate service-type
// vocabulary).
func VaultTypeForService(serviceType string) (VaultType, bool) {
	vt := VaultType(serviceType)
	return vt, vt.Valid()
}

// TaskKind identifies a GM task-queue entry's kind (§4.7.1).
type TaskKind string

const (
	TaskSyncAll           TaskKind = "sync-all"
	TaskReconcilePayments TaskKind = "reconcile-payments"
	TaskRefreshLMStatus   TaskKind = "refresh-lm-status"
)
