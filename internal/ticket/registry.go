package ticket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"deskbot.org/internal/kv"
	"deskbot.org/internal/obs"
)

// Registry caches the two ticket indexes and writes both through to the KV
// store on every mutation. The KV key set is fixed, so the escalation flag
// lives in memory only: after a restart a claimed ticket rehydrates as
// CLAIMED and a repeat claim by its claimant simply re-escalates.
type Registry struct {
	mu    sync.Mutex
	store kv.Store

	active    map[string]string // userID -> channelID
	claimed   map[string]string // channelID -> claimerID
	escalated map[string]bool   // channelID -> escalation requested
}

// NewRegistry rehydrates the indexes from the store. Absent or malformed
// data starts empty.
func NewRegistry(ctx context.Context, store kv.Store) (*Registry, error) {
	r := &Registry{
		store:     store,
		active:    make(map[string]string),
		claimed:   make(map[string]string),
		escalated: make(map[string]bool),
	}
	if err := r.loadKey(ctx, kv.KeyActiveTickets, &r.active); err != nil {
		return nil, err
	}
	if err := r.loadKey(ctx, kv.KeyClaimedTickets, &r.claimed); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) loadKey(ctx context.Context, key string, dst *map[string]string) error {
	data, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var loaded map[string]string
	if err := json.Unmarshal(data, &loaded); err != nil {
		obs.LogEvent(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": "warn",
			"msg":   "discarding malformed ticket index",
			"key":   key,
			"error": err.Error(),
		})
		return nil
	}
	if loaded != nil {
		*dst = loaded
	}
	return nil
}

// persist writes both indexes together; callers hold r.mu.
func (r *Registry) persist(ctx context.Context) error {
	activeData, err := json.Marshal(r.active)
	if err != nil {
		return err
	}
	claimedData, err := json.Marshal(r.claimed)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, kv.KeyActiveTickets, activeData); err != nil {
		return err
	}
	return r.store.Set(ctx, kv.KeyClaimedTickets, claimedData)
}

// ActiveChannel returns the requester's open ticket channel, if any.
func (r *Registry) ActiveChannel(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.active[userID]
	return ch, ok
}

// UserForChannel returns the user a ticket channel belongs to.
func (r *Registry) UserForChannel(channelID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, ch := range r.active {
		if ch == channelID {
			return userID, true
		}
	}
	return "", false
}

// Claimer returns the recorded claimant for a channel.
func (r *Registry) Claimer(channelID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	claimer, ok := r.claimed[channelID]
	return claimer, ok
}

// IsEscalated reports whether more support was already requested.
func (r *Registry) IsEscalated(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.escalated[channelID]
}

// OpenCount returns the number of open tickets.
func (r *Registry) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Snapshot copies both indexes for the ops API.
func (r *Registry) Snapshot() (active, claimed map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	active = make(map[string]string, len(r.active))
	for k, v := range r.active {
		active[k] = v
	}
	claimed = make(map[string]string, len(r.claimed))
	for k, v := range r.claimed {
		claimed[k] = v
	}
	return active, claimed
}

// SetActive registers a user's open ticket channel and persists.
func (r *Registry) SetActive(ctx context.Context, userID, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[userID] = channelID
	return r.persist(ctx)
}

// SetClaimer records the claimant for a channel if it is still unclaimed,
// persisting on success. The check and the write are one critical section:
// the caller learns about a lost race from ok=false and the incumbent id.
func (r *Registry) SetClaimer(ctx context.Context, channelID, userID string) (incumbent string, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, claimed := r.claimed[channelID]; claimed {
		return current, false, nil
	}
	r.claimed[channelID] = userID
	if err := r.persist(ctx); err != nil {
		delete(r.claimed, channelID)
		return "", false, err
	}
	return userID, true, nil
}

// MarkEscalated flags the channel; in-memory only.
func (r *Registry) MarkEscalated(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.escalated[channelID] = true
}

// Clear removes exactly this channel from both indexes and the escalation
// set, then persists. Clearing an unknown channel is a no-op.
func (r *Registry) Clear(ctx context.Context, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for userID, ch := range r.active {
		if ch == channelID {
			delete(r.active, userID)
			changed = true
		}
	}
	if _, ok := r.claimed[channelID]; ok {
		delete(r.claimed, channelID)
		changed = true
	}
	delete(r.escalated, channelID)
	if !changed {
		return nil
	}
	return r.persist(ctx)
}
