// Package localmanager implements the edge agent (C8): one handler per
// installed vault type polling its receive directory, an HTTP health
// endpoint the GM scrapes, and fleet registration so the GM can
// discover this instance without static config (§4.8.3 ADD).
//
// Grounded on internal/monitor.BotMonitor's ticker-driven check loop
// (kept from the teacher), generalized from "poll a bot's container
// status" to "poll a vault type's receive directory for a newer
// sequence".
package localmanager

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/suiftly/sealctl/internal/clock"
	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/vault"
)

// appliedVersion records the currently active vault and when it was
// promoted, for the health endpoint and for diff computation against
// the previous version (§4.8.1 p.3 "keeps the previous vault accessible
// for diff computation").
type appliedVersion struct {
	seq int64
	at  time.Time
	v   *vault.Vault
}

// VaultHandler holds one vault type's in-memory applied/processing
// state (§4.8.1). Safe for concurrent use: checkForUpdate runs on a
// single ticker goroutine, but the health endpoint reads state from an
// HTTP handler goroutine concurrently.
type VaultHandler struct {
	vaultType enum.VaultType
	store     *vault.Store
	clock     clock.Clock

	mu         sync.Mutex
	active     *appliedVersion
	previous   *appliedVersion
	processing *int64 // non-nil while a version is being applied
	startedAt  time.Time
	lastError  string
}

// NewVaultHandler constructs a handler for one vault type, with no
// active version yet — the first checkForUpdate call populates it from
// whatever is newest on disk.
func NewVaultHandler(vaultType enum.VaultType, store *vault.Store, clk clock.Clock) *VaultHandler {
	return &VaultHandler{vaultType: vaultType, store: store, clock: clk}
}

// applyFunc notifies downstream apply hooks that a new vault version is
// live. §4.8.1 p.2 calls this "external, out of scope" — the default
// is a no-op; callers wire a real one (e.g. reloading a gateway config)
// via SetApplyFunc.
type applyFunc func(ctx context.Context, v *vault.Vault) error

// CheckForUpdate implements §4.8.1: loads the newest valid file from
// the receive directory; if its seq is greater than the active seq, it
// is processed and, on success, promoted.
func (h *VaultHandler) CheckForUpdate(ctx context.Context, apply applyFunc) error {
	latest, skipped, err := h.store.GetLatestValidVault(h.vaultType)
	if err != nil {
		return err
	}
	for _, s := range skipped {
		log.Printf("[LM] action=vault_skip type=%s seq=%d err=%v", h.vaultType, s.Seq, s.Err)
	}
	if latest == nil {
		return nil
	}

	h.mu.Lock()
	activeSeq := int64(0)
	if h.active != nil {
		activeSeq = h.active.seq
	}
	h.mu.Unlock()

	if latest.Header.Seq <= activeSeq {
		return nil
	}

	newSeq := latest.Header.Seq
	h.mu.Lock()
	h.processing = &newSeq
	h.startedAt = h.clock.Now()
	h.mu.Unlock()

	if apply == nil {
		apply = func(context.Context, *vault.Vault) error { return nil }
	}
	applyErr := apply(ctx, latest)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.processing = nil
	if applyErr != nil {
		h.lastError = applyErr.Error()
		log.Printf("[LM] action=vault_apply_fail type=%s seq=%d err=%v", h.vaultType, newSeq, applyErr)
		return applyErr
	}

	h.lastError = ""
	h.previous = h.active
	h.active = &appliedVersion{seq: newSeq, at: h.clock.Now(), v: latest}
	log.Printf("[LM] action=vault_apply_ok type=%s seq=%d entries=%d", h.vaultType, newSeq, latest.Header.EntryCount)
	return nil
}

// Snapshot is a read-only view of a handler's state for the health
// endpoint.
type Snapshot struct {
	Type       enum.VaultType
	Entries    int
	AppliedSeq int64
	AppliedAt  time.Time
	HasApplied bool
	Processing bool
	ProcSeq    int64
	StartedAt  time.Time
	LastError  string
}

// Snapshot returns h's current state.
func (h *VaultHandler) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Snapshot{Type: h.vaultType, LastError: h.lastError}
	if h.active != nil {
		s.HasApplied = true
		s.AppliedSeq = h.active.seq
		s.AppliedAt = h.active.at
		s.Entries = h.active.v.Header.EntryCount
	}
	if h.processing != nil {
		s.Processing = true
		s.ProcSeq = *h.processing
		s.StartedAt = h.startedAt
	}
	return s
}

// Active returns the currently applied vault, or nil if none has ever
// been applied.
func (h *VaultHandler) Active() *vault.Vault {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		return nil
	}
	return h.active.v
}

// Previous returns the vault version superseded by the current active
// one, for diff computation; nil before the second successful apply.
func (h *VaultHandler) Previous() *vault.Vault {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.previous == nil {
		return nil
	}
	return h.previous.v
}
