package globalmanager

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/fleet"
	"github.com/suiftly/sealctl/internal/store"
)

// pollTimeout bounds a single LM health poll (§4.7.4).
const pollTimeout = 5 * time.Second

// healthVaultStatus mirrors one element of an LM's /api/health response
// body (§4.8.2) — the GM's read side of that JSON shape.
type healthVaultStatus struct {
	Type    enum.VaultType `json:"type"`
	Entries int            `json:"entries"`
	Applied *struct {
		Seq int64     `json:"seq"`
		At  time.Time `json:"at"`
	} `json:"applied"`
	Processing *struct {
		Seq       int64     `json:"seq"`
		StartedAt time.Time `json:"started_at"`
		Error     string    `json:"error"`
	} `json:"processing"`
}

// Endpoint is one LM the GM knows how to poll.
type Endpoint struct {
	LMID string
	URL  string // e.g. "https://edge-1.example.com/api/health"
}

// PollFleet implements §4.7.4: poll every configured LM endpoint in
// parallel with a per-request timeout, upsert an LMStatus row per
// (lm_id, vault_type) observed, and aggregate every per-endpoint
// failure via go-multierror rather than letting one unreachable LM
// abort the whole sweep.
func (m *Manager) PollFleet(ctx context.Context) error {
	endpoints, err := m.resolveEndpoints(ctx)
	if err != nil {
		return fmt.Errorf("globalmanager: resolve fleet endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		combined *multierror.Error
	)

	for _, ep := range endpoints {
		wg.Add(1)
		go func(ep Endpoint) {
			defer wg.Done()
			if err := m.pollOne(ctx, ep); err != nil {
				mu.Lock()
				combined = multierror.Append(combined, fmt.Errorf("lm %s: %w", ep.LMID, err))
				mu.Unlock()
			}
		}(ep)
	}
	wg.Wait()

	if combined != nil {
		log.Printf("[GM] action=poll_fleet status=partial_failure detail=%v", combined)
	}
	return combined.ErrorOrNil()
}

// resolveEndpoints reads the etcd fleet registry when configured,
// falling back to a static list for single-instance/development mode
// (§4.7.6, matching the teacher's monitor.Manager distributed/
// single-instance duality).
func (m *Manager) resolveEndpoints(ctx context.Context) ([]Endpoint, error) {
	if m.etcdClient == nil {
		return m.staticEndpoints, nil
	}

	members, err := fleet.ListMembers(ctx, m.etcdClient)
	if err != nil {
		return nil, err
	}
	endpoints := make([]Endpoint, 0, len(members))
	for _, mem := range members {
		endpoints = append(endpoints, Endpoint{LMID: mem.LMID, URL: mem.Host + "/api/health"})
	}
	return endpoints, nil
}

func (m *Manager) pollOne(ctx context.Context, ep Endpoint) error {
	reqCtx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return err
	}

	if m.tokenIssuer != nil {
		token, err := m.tokenIssuer.Mint(ep.LMID, m.clock.Now())
		if err != nil {
			return fmt.Errorf("mint fleet token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := m.httpClient.Do(req)
	now := m.clock.Now()
	if err != nil {
		return m.recordPollFailure(ctx, ep.LMID, now, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return m.recordPollFailure(ctx, ep.LMID, now, fmt.Sprintf("status %d", resp.StatusCode))
	}

	var statuses []healthVaultStatus
	if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
		return m.recordPollFailure(ctx, ep.LMID, now, fmt.Sprintf("decode response: %v", err))
	}

	return store.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		for _, s := range statuses {
			status := &store.LMStatus{LMID: ep.LMID, VaultType: s.Type, Entries: int32(s.Entries), LastSeenAt: sql.NullTime{Time: now, Valid: true}}
			if s.Applied != nil {
				status.AppliedSeq = s.Applied.Seq
			}
			if s.Processing != nil {
				status.ProcessingSeq = sql.NullInt64{Int64: s.Processing.Seq, Valid: true}
				if s.Processing.Error != "" {
					status.LastError = sql.NullString{String: s.Processing.Error, Valid: true}
				}
			}
			if err := store.UpsertLMStatus(ctx, tx, status); err != nil {
				return err
			}
		}
		return nil
	})
}

// recordPollFailure upserts a status row carrying lastError so the
// freshness computation excludes this LM without needing a separate
// "unreachable" table, then returns the poll failure itself so PollFleet
// aggregates it.
func (m *Manager) recordPollFailure(ctx context.Context, lmID string, now time.Time, errMsg string) error {
	err := store.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		for _, vt := range enum.VaultTypes {
			if err := store.RecordLMStatusError(ctx, tx, lmID, vt, now, errMsg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return fmt.Errorf("poll failed: %s", errMsg)
}
