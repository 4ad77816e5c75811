// Package ticket owns the support ticket lifecycle: the persisted indexes
// (user to open channel, channel to claimant) and the controller driving
// the open/claim/escalate/close state machine.
package ticket

import "errors"

// Lifecycle states, used for audit and activity events. The persisted
// state is the index pair; ESCALATED is tracked in memory (see registry).
const (
	StateUnclaimed = "open_unclaimed"
	StateClaimed   = "claimed"
	StateEscalated = "escalated"
	StateClosed    = "closed"
)

var (
	// ErrDuplicateTicket means the requester already has an open ticket.
	ErrDuplicateTicket = errors.New("ticket: user already has an active ticket")
	// ErrNotTicketChannel means the interaction channel is not a ticket.
	ErrNotTicketChannel = errors.New("ticket: not a ticket channel")
	// ErrAlreadyClaimed means another actor holds the ticket.
	ErrAlreadyClaimed = errors.New("ticket: already claimed")
	// ErrAlreadyEscalated means the claimant already requested more support.
	ErrAlreadyEscalated = errors.New("ticket: already escalated")
	// ErrNotClaimant means the actor is not the recorded claimant.
	ErrNotClaimant = errors.New("ticket: not the claimant")
	// ErrCreationAborted means the modal form timed out or was cancelled.
	ErrCreationAborted = errors.New("ticket: creation aborted")
	// ErrMissingFields means the modal form came back without the
	// required reason or player name.
	ErrMissingFields = errors.New("ticket: required fields missing")
)
