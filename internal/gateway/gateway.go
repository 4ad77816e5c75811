// Package gateway consumes inbound platform events and routes them to the
// ticket and membership controllers. Each event is handled on its own
// goroutine; a panic in one handler never takes the event loop down.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"deskbot.org/internal/audit"
	"deskbot.org/internal/duration"
	"deskbot.org/internal/ids"
	"deskbot.org/internal/membership"
	"deskbot.org/internal/obs"
	"deskbot.org/internal/platform"
	"deskbot.org/internal/ticket"
)

// Commands routed by the dispatcher.
const (
	CommandTicket     = "ticket"
	CommandMembership = "m-membership"
	CommandRevocation = "m-unmembership"
)

// Dispatcher routes gateway events to the controllers.
type Dispatcher struct {
	gateway     platform.Gateway
	client      platform.Client
	tickets     *ticket.Controller
	memberships *membership.Controller
}

// New wires a dispatcher.
func New(gw platform.Gateway, client platform.Client, tickets *ticket.Controller, memberships *membership.Controller) *Dispatcher {
	return &Dispatcher{
		gateway:     gw,
		client:      client,
		tickets:     tickets,
		memberships: memberships,
	}
}

// Run consumes events until ctx is cancelled or the event channel closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	events, err := d.gateway.Events(ctx)
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errors.New("event stream closed")
			}
			go d.dispatch(ctx, ev)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev platform.Event) {
	defer func() {
		if r := recover(); r != nil {
			obs.LogEvent(map[string]any{
				"ts":    time.Now().UTC().Format(time.RFC3339Nano),
				"level": "error",
				"msg":   "event handler panic",
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
		}
	}()

	switch e := ev.(type) {
	case platform.CommandEvent:
		d.handleCommand(d.requestContext(ctx, e.Actor.ID), e)
	case platform.ButtonEvent:
		d.handleButton(d.requestContext(ctx, e.Actor.ID), e)
	}
}

func (d *Dispatcher) requestContext(ctx context.Context, actorID string) context.Context {
	ctx = audit.WithRequestID(ctx, ids.New())
	return audit.WithActor(ctx, actorID)
}

func (d *Dispatcher) handleCommand(ctx context.Context, ev platform.CommandEvent) {
	var err error
	switch ev.Command {
	case CommandTicket:
		err = d.tickets.Create(ctx, ev)
	case CommandMembership:
		err = d.memberships.Assign(ctx, membership.AssignRequest{
			Interaction:  ev.Interaction,
			TargetUserID: ev.Options["user"],
			RoleID:       ev.Options["role"],
			Duration:     ev.Options["duration"],
		})
		if err == nil {
			d.reply(ctx, ev.ID, "Membership assigned.")
		}
	case CommandRevocation:
		err = d.memberships.Revoke(ctx, membership.RevokeRequest{
			Interaction:  ev.Interaction,
			TargetUserID: ev.Options["user"],
			RoleID:       ev.Options["role"],
		})
		if err == nil {
			d.reply(ctx, ev.ID, "Membership revoked.")
		}
	default:
		d.reply(ctx, ev.ID, "Unknown command.")
		obs.ObserveCommand(ev.Command, "unknown")
		return
	}

	if err != nil {
		d.reply(ctx, ev.ID, userMessage(err))
		d.logHandlerError(ev.Command, ev.Actor.ID, err)
		obs.ObserveCommand(ev.Command, "failure")
		return
	}
	obs.ObserveCommand(ev.Command, "success")
}

func (d *Dispatcher) handleButton(ctx context.Context, ev platform.ButtonEvent) {
	var err error
	switch ev.ButtonID {
	case ticket.ButtonClaim:
		err = d.tickets.Claim(ctx, ev)
	case ticket.ButtonClose:
		err = d.tickets.Close(ctx, ev)
	default:
		return
	}

	if err != nil {
		d.reply(ctx, ev.ID, userMessage(err))
		d.logHandlerError(ev.ButtonID, ev.Actor.ID, err)
		obs.ObserveCommand(ev.ButtonID, "failure")
		return
	}
	obs.ObserveCommand(ev.ButtonID, "success")
}

func (d *Dispatcher) reply(ctx context.Context, interactionID, content string) {
	if err := d.client.Reply(ctx, interactionID, content); err != nil {
		obs.LogEvent(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": "warn",
			"msg":   "interaction reply failed",
			"error": err.Error(),
		})
	}
}

func (d *Dispatcher) logHandlerError(operation, actorID string, err error) {
	obs.LogEvent(map[string]any{
		"ts":        time.Now().UTC().Format(time.RFC3339Nano),
		"level":     "warn",
		"msg":       "event handler failed",
		"operation": operation,
		"actor_id":  actorID,
		"error":     err.Error(),
	})
}

// userMessage translates handler errors into the ephemeral reply the actor
// sees. Expected rejections get a specific sentence; everything else is a
// generic failure so internals never leak into the channel.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ticket.ErrDuplicateTicket):
		return "You already have an open ticket."
	case errors.Is(err, ticket.ErrCreationAborted):
		return "Ticket creation timed out. Run the command again when ready."
	case errors.Is(err, ticket.ErrMissingFields):
		return "Reason and player name are required. Run the command again and fill them in."
	case errors.Is(err, ticket.ErrNotTicketChannel):
		return "This button only works inside a ticket channel."
	case errors.Is(err, ticket.ErrAlreadyClaimed):
		return "This ticket is already claimed by someone else."
	case errors.Is(err, ticket.ErrAlreadyEscalated):
		return "More support has already been requested for this ticket."
	case errors.Is(err, ticket.ErrNotClaimant):
		return "Only the staff member who claimed this ticket can close it."
	case errors.Is(err, duration.ErrInvalidFormat):
		return "Invalid duration format. Use forms like 7d, 12h, or perm."
	case errors.Is(err, membership.ErrInvalidInput):
		return "Invalid input: " + err.Error()
	case errors.Is(err, membership.ErrRoleHeld):
		return "That user already has the role."
	case errors.Is(err, membership.ErrRoleNotHeld):
		return "That user does not have the role."
	default:
		return "Something went wrong. Please try again."
	}
}
