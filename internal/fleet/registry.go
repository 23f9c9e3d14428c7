// Package fleet implements the etcd-backed Local Manager registry (A4)
// and the JWT bearer tokens GM↔LM health polling uses to authenticate
// (A7).
//
// Grounded on internal/etcd's Client (kept from the teacher, used there
// for distributed coordination primitives): registration reuses its
// lease/keep-alive/prefix-read methods directly rather than wrapping
// the raw clientv3 API a second time.
package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/suiftly/sealctl/internal/etcd"
)

const registryPrefix = "/sealctl/fleet/"

// Member is a single Local Manager's liveness record (§3 ADD
// FleetMember). It is ephemeral: backed by an etcd lease, never
// persisted relationally.
type Member struct {
	LMID         string    `json:"lm_id"`
	Name         string    `json:"name"`
	Host         string    `json:"host"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Registration holds the live lease keeping a Member's registry entry
// present. Call Close to stop refreshing and let the lease expire.
type Registration struct {
	client  *etcd.Client
	leaseID int64
	cancel  context.CancelFunc
	done    chan struct{}
}

// Register puts member's registry entry under registryPrefix+lm_id with
// a lease of leaseTTL seconds, and keeps the lease alive through etcd's
// keep-alive stream (which refreshes it about every leaseTTL/3) until ctx
// is cancelled or Close is called. refreshEvery is not used. Per §4.8.3, a failure to register is logged by the caller and
// treated as non-fatal — LM fleet membership is a liveness optimization
// for the GM's polling target list (§4.7.6), not a startup dependency.
func Register(ctx context.Context, client *etcd.Client, member Member, leaseTTL int64, refreshEvery time.Duration) (*Registration, error) {
	lease, err := client.GrantLease(ctx, leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("fleet: grant lease: %w", err)
	}

	payload, err := json.Marshal(member)
	if err != nil {
		return nil, fmt.Errorf("fleet: marshal member: %w", err)
	}
	key := registryPrefix + member.LMID
	if err := client.PutWithLease(ctx, key, string(payload), lease); err != nil {
		return nil, fmt.Errorf("fleet: put registry entry: %w", err)
	}

	keepAliveCtx, cancel := context.WithCancel(ctx)
	keepAlive, err := client.KeepAlive(keepAliveCtx, lease)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("fleet: start keepalive: %w", err)
	}

	reg := &Registration{client: client, leaseID: int64(lease), cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(reg.done)
		for range keepAlive {
			// drained; etcd's client-side keepalive loop does the
			// actual refresh timer internally at ttl/3.
		}
	}()
	_ = refreshEvery // etcd's KeepAlive already refreshes on its own schedule; kept as a documented parameter for callers tuning leaseTTL accordingly.

	return reg, nil
}

// Close stops refreshing the lease, letting it expire naturally once
// leaseTTL elapses (§4.8.3's 15s expiry tolerance).
func (r *Registration) Close() {
	r.cancel()
	<-r.done
}

// ListMembers reads every live registry entry.
func ListMembers(ctx context.Context, client *etcd.Client) ([]Member, error) {
	raw, err := client.GetWithPrefix(ctx, registryPrefix)
	if err != nil {
		return nil, fmt.Errorf("fleet: list members: %w", err)
	}
	members := make([]Member, 0, len(raw))
	for key, value := range raw {
		if !strings.HasPrefix(key, registryPrefix) {
			continue
		}
		var m Member
		if err := json.Unmarshal([]byte(value), &m); err != nil {
			continue
		}
		members = append(members, m)
	}
	return members, nil
}
