package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"deskbot.org/internal/kv/memory"
	"deskbot.org/internal/membership"
	"deskbot.org/internal/platform"
	"deskbot.org/internal/platform/platformtest"
	"deskbot.org/internal/stream"
	"deskbot.org/internal/ticket"
)

// chanGateway feeds a fixed event sequence to the dispatcher.
type chanGateway struct {
	events chan platform.Event
}

func (g *chanGateway) Events(ctx context.Context) (<-chan platform.Event, error) {
	return g.events, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *chanGateway, *platformtest.Fake) {
	t.Helper()
	ctx := context.Background()
	fake := platformtest.New()
	events := stream.New()

	ticketReg, err := ticket.NewRegistry(ctx, memory.New())
	if err != nil {
		t.Fatalf("ticket.NewRegistry: %v", err)
	}
	tickets := ticket.NewController(fake, ticketReg, ticket.Config{
		GuildID:       "guild-1",
		CategoryID:    "cat-1",
		SupportRoleID: "role-support",
		SeniorRoleID:  "role-senior",
		FounderRoleID: "role-founder",
		LogChannelID:  "chan-log",
	}, events, ticket.WithDeleteDelay(0))

	memberReg := membership.NewRegistry(memory.New())
	members := membership.NewController(fake, memberReg, membership.Config{
		GuildID:      "guild-1",
		LogChannelID: "chan-memberlog",
	}, events)
	t.Cleanup(members.Stop)

	gw := &chanGateway{events: make(chan platform.Event, 8)}
	return New(gw, fake, tickets, members), gw, fake
}

func waitForReply(t *testing.T, fake *platformtest.Fake, interactionID string) platformtest.Reply {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, r := range fake.RepliesSnapshot() {
			if r.InteractionID == interactionID {
				return r
			}
		}
		select {
		case <-deadline:
			t.Fatalf("no reply for interaction %s", interactionID)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func runDispatcher(t *testing.T, d *Dispatcher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = d.Run(ctx) }()
	return cancel
}

func TestDispatchTicketCommand(t *testing.T) {
	d, gw, fake := newTestDispatcher(t)
	defer runDispatcher(t, d)()

	ev := platform.CommandEvent{
		Interaction: platform.Interaction{
			ID:      "int-1",
			GuildID: "guild-1",
			Actor:   platform.Member{ID: "user-1", Username: "alice", Tag: "alice#0001"},
		},
		Command: CommandTicket,
	}
	fake.Submissions["int-1"] = platform.ModalSubmission{
		InteractionID: "int-1",
		Values:        map[string]string{"ticket_reason": "billing", "player_name": "alice"},
	}
	gw.events <- ev

	reply := waitForReply(t, fake, "int-1")
	if !strings.Contains(reply.Content, "created") {
		t.Fatalf("reply = %q, want a creation confirmation", reply.Content)
	}
}

func TestDispatchMembershipCommand(t *testing.T) {
	d, gw, fake := newTestDispatcher(t)
	defer runDispatcher(t, d)()

	fake.Members["user-2"] = platform.Member{ID: "user-2", GuildID: "guild-1", Tag: "bob#0001"}
	fake.Roles["role-vip"] = platform.Role{ID: "role-vip", GuildID: "guild-1", Name: "VIP"}

	gw.events <- platform.CommandEvent{
		Interaction: platform.Interaction{
			ID:    "int-2",
			Actor: platform.Member{ID: "admin-1", Tag: "admin#0001"},
		},
		Command: CommandMembership,
		Options: map[string]string{"user": "user-2", "role": "role-vip", "duration": "7d"},
	}

	reply := waitForReply(t, fake, "int-2")
	if reply.Content != "Membership assigned." {
		t.Fatalf("reply = %q, want assignment confirmation", reply.Content)
	}
}

func TestDispatchMembershipInvalidDuration(t *testing.T) {
	d, gw, fake := newTestDispatcher(t)
	defer runDispatcher(t, d)()

	fake.Members["user-2"] = platform.Member{ID: "user-2", GuildID: "guild-1", Tag: "bob#0001"}
	fake.Roles["role-vip"] = platform.Role{ID: "role-vip", GuildID: "guild-1", Name: "VIP"}

	gw.events <- platform.CommandEvent{
		Interaction: platform.Interaction{
			ID:    "int-8",
			Actor: platform.Member{ID: "admin-1", Tag: "admin#0001"},
		},
		Command: CommandMembership,
		Options: map[string]string{"user": "user-2", "role": "role-vip", "duration": "2x"},
	}

	reply := waitForReply(t, fake, "int-8")
	if !strings.Contains(reply.Content, "Invalid duration format") {
		t.Fatalf("reply = %q, want an invalid-duration notice", reply.Content)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	d, gw, fake := newTestDispatcher(t)
	defer runDispatcher(t, d)()

	gw.events <- platform.CommandEvent{
		Interaction: platform.Interaction{ID: "int-3", Actor: platform.Member{ID: "user-1"}},
		Command:     "frobnicate",
	}
	reply := waitForReply(t, fake, "int-3")
	if reply.Content != "Unknown command." {
		t.Fatalf("reply = %q, want unknown command notice", reply.Content)
	}
}

func TestDispatchMapsRejectionsToFriendlyReplies(t *testing.T) {
	d, gw, fake := newTestDispatcher(t)
	defer runDispatcher(t, d)()

	// Claim outside any ticket channel.
	gw.events <- platform.ButtonEvent{
		Interaction: platform.Interaction{
			ID:        "int-4",
			ChannelID: "chan-random",
			Actor:     platform.Member{ID: "staff-1", Tag: "staff#0001"},
		},
		ButtonID: ticket.ButtonClaim,
	}
	reply := waitForReply(t, fake, "int-4")
	if !strings.Contains(reply.Content, "ticket channel") {
		t.Fatalf("reply = %q, want not-a-ticket-channel notice", reply.Content)
	}

	// Revoking a role the member does not hold.
	fake.Members["user-2"] = platform.Member{ID: "user-2", GuildID: "guild-1", Tag: "bob#0001"}
	gw.events <- platform.CommandEvent{
		Interaction: platform.Interaction{ID: "int-5", Actor: platform.Member{ID: "admin-1"}},
		Command:     CommandRevocation,
		Options:     map[string]string{"user": "user-2", "role": "role-vip"},
	}
	reply = waitForReply(t, fake, "int-5")
	if !strings.Contains(reply.Content, "does not have the role") {
		t.Fatalf("reply = %q, want role-not-held notice", reply.Content)
	}

	// Modal submitted with the required fields blank.
	fake.Submissions["int-6"] = platform.ModalSubmission{
		InteractionID: "int-6",
		Values:        map[string]string{"ticket_reason": "", "player_name": ""},
	}
	gw.events <- platform.CommandEvent{
		Interaction: platform.Interaction{
			ID:    "int-6",
			Actor: platform.Member{ID: "user-1", Username: "alice", Tag: "alice#0001"},
		},
		Command: CommandTicket,
	}
	reply = waitForReply(t, fake, "int-6")
	if !strings.Contains(reply.Content, "Reason and player name are required") {
		t.Fatalf("reply = %q, want missing-fields notice", reply.Content)
	}
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	d, gw, fake := newTestDispatcher(t)
	defer runDispatcher(t, d)()

	// Force a panic inside the handler goroutine.
	d.tickets = nil
	gw.events <- platform.ButtonEvent{
		Interaction: platform.Interaction{ID: "int-6", ChannelID: "chan-1", Actor: platform.Member{ID: "u"}},
		ButtonID:    ticket.ButtonClaim,
	}

	// The loop must stay alive and serve the next event.
	gw.events <- platform.CommandEvent{
		Interaction: platform.Interaction{ID: "int-7", Actor: platform.Member{ID: "user-1"}},
		Command:     "frobnicate",
	}
	reply := waitForReply(t, fake, "int-7")
	if reply.Content != "Unknown command." {
		t.Fatalf("reply = %q, want unknown command notice", reply.Content)
	}
}
