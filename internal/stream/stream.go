// Package stream fans bot activity events out to ops subscribers (the SSE
// endpoint). Publishing never blocks; slow subscribers miss events.
package stream

import (
	"context"
	"sync"
	"time"
)

// Kinds of activity events.
const (
	KindTicketCreated     = "ticket.created"
	KindTicketClaimed     = "ticket.claimed"
	KindTicketEscalated   = "ticket.escalated"
	KindTicketClosed      = "ticket.closed"
	KindMembershipGranted = "membership.granted"
	KindMembershipRevoked = "membership.revoked"
	KindMembershipExpired = "membership.expired"
)

// Event is one bot activity record for the live ops feed.
type Event struct {
	Kind      string    `json:"kind"`
	GuildID   string    `json:"guild_id,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	RoleID    string    `json:"role_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs activity events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events that closes when ctx is cancelled.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 32)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}()

	return ch
}

// Publish delivers the event to every subscriber without blocking. A nil
// stream is a no-op so callers can leave the feed unwired.
func (s *Stream) Publish(event Event) {
	if s == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
			// subscriber is behind; drop
		}
	}
}

// Subscribers reports the current subscriber count.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
