package membership

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"deskbot.org/internal/kv"
	"deskbot.org/internal/obs"
)

// Registry persists the membership set under a single KV key. Every
// mutation is a full read-modify-write; the mutex serialises them so a
// grant and a revoke racing on the same pair cannot lose an update.
type Registry struct {
	mu    sync.Mutex
	store kv.Store
}

// NewRegistry wraps the KV store.
func NewRegistry(store kv.Store) *Registry {
	return &Registry{store: store}
}

// Load reads the persisted set. Absent or malformed data yields an empty
// slice: "no data yet" is a normal state, not an error.
func (r *Registry) Load(ctx context.Context) ([]Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

func (r *Registry) load(ctx context.Context) ([]Membership, error) {
	data, ok, err := r.store.Get(ctx, kv.KeyMemberships)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Membership{}, nil
	}
	var memberships []Membership
	if err := json.Unmarshal(data, &memberships); err != nil {
		obs.LogEvent(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": "warn",
			"msg":   "discarding malformed membership data",
			"error": err.Error(),
		})
		return []Membership{}, nil
	}
	if memberships == nil {
		memberships = []Membership{}
	}
	return memberships, nil
}

// Save overwrites the persisted set in one KV write.
func (r *Registry) Save(ctx context.Context, memberships []Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(ctx, memberships)
}

func (r *Registry) save(ctx context.Context, memberships []Membership) error {
	if memberships == nil {
		memberships = []Membership{}
	}
	data, err := json.Marshal(memberships)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, kv.KeyMemberships, data)
}

// Add appends a record, dropping any existing record for the same
// (user, role) pair first so duplicates never accumulate.
func (r *Registry) Add(ctx context.Context, m Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	memberships, err := r.load(ctx)
	if err != nil {
		return err
	}
	out := memberships[:0]
	for _, existing := range memberships {
		if existing.UserID == m.UserID && existing.RoleID == m.RoleID {
			continue
		}
		out = append(out, existing)
	}
	out = append(out, m)
	return r.save(ctx, out)
}

// Remove filters out records matching (userID, roleID). Removing an absent
// pair is a no-op.
func (r *Registry) Remove(ctx context.Context, userID, roleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	memberships, err := r.load(ctx)
	if err != nil {
		return err
	}
	out := memberships[:0]
	changed := false
	for _, m := range memberships {
		if m.UserID == userID && m.RoleID == roleID {
			changed = true
			continue
		}
		out = append(out, m)
	}
	if !changed {
		return nil
	}
	return r.save(ctx, out)
}
