package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"deskbot.org/internal/audit"
	"deskbot.org/internal/obs"
	"deskbot.org/internal/platform"
	"deskbot.org/internal/stream"
	"deskbot.org/internal/transcript"
)

const (
	defaultModalWait   = 5 * time.Minute
	defaultDeleteDelay = 5 * time.Second
	deleteTimeout      = 30 * time.Second
)

// Config carries the guild wiring for ticket channels.
type Config struct {
	GuildID       string
	CategoryID    string
	SupportRoleID string
	SeniorRoleID  string
	FounderRoleID string
	LogChannelID  string
}

// Controller drives the ticket state machine. Claim and close serialise on
// a per-channel mutex, creation on a per-user mutex; every registry
// decision is re-validated inside the lock after platform suspensions.
type Controller struct {
	client   platform.Client
	registry *Registry
	cfg      Config
	events   *stream.Stream

	userLocks    *keyedMutex
	channelLocks *keyedMutex

	modalWait   time.Duration
	deleteDelay time.Duration
}

// Option configures Controller.
type Option func(*Controller)

// WithModalWait overrides the form submission bound.
func WithModalWait(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.modalWait = d
		}
	}
}

// WithDeleteDelay overrides the grace delay before channel deletion.
func WithDeleteDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.deleteDelay = d
		}
	}
}

// NewController wires the controller. events may be nil.
func NewController(client platform.Client, registry *Registry, cfg Config, events *stream.Stream, opts ...Option) *Controller {
	c := &Controller{
		client:       client,
		registry:     registry,
		cfg:          cfg,
		events:       events,
		userLocks:    newKeyedMutex(),
		channelLocks: newKeyedMutex(),
		modalWait:    defaultModalWait,
		deleteDelay:  defaultDeleteDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	obs.SetOpenTickets(registry.OpenCount())
	return c
}

// Create opens a new ticket for the requesting actor: duplicate check,
// modal form with a bounded wait, channel creation with visibility
// overwrites, index registration, and the initial summary message. The
// duplicate check runs again after the modal wait, before any write.
func (c *Controller) Create(ctx context.Context, ev platform.CommandEvent) error {
	actor := ev.Actor

	if ch, ok := c.registry.ActiveChannel(actor.ID); ok {
		return fmt.Errorf("%w: channel %s", ErrDuplicateTicket, ch)
	}

	if err := c.client.OpenModal(ctx, ev.ID, creationModal()); err != nil {
		return fmt.Errorf("open modal: %w", err)
	}
	sub, err := c.client.AwaitModal(ctx, ev.ID, c.modalWait)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCreationAborted, err)
	}

	reason := strings.TrimSpace(sub.Values[fieldReason])
	playerName := strings.TrimSpace(sub.Values[fieldPlayerName])
	description := strings.TrimSpace(sub.Values[fieldDescription])
	if reason == "" || playerName == "" {
		return fmt.Errorf("%w: reason=%q player=%q", ErrMissingFields, reason, playerName)
	}

	unlock := c.userLocks.lock(actor.ID)
	defer unlock()

	// The modal wait is a suspension point; someone may have opened a
	// ticket for this user meanwhile.
	if ch, ok := c.registry.ActiveChannel(actor.ID); ok {
		return fmt.Errorf("%w: channel %s", ErrDuplicateTicket, ch)
	}

	channel, err := c.client.CreateChannel(ctx, c.cfg.GuildID, platform.CreateChannelRequest{
		Name:     "ticket-" + strings.ToLower(actor.Username),
		ParentID: c.cfg.CategoryID,
		Overwrites: []platform.PermissionOverwrite{
			{
				PrincipalID:   c.cfg.GuildID,
				PrincipalType: platform.PrincipalRole,
				Deny:          []string{platform.PermViewChannel},
			},
			{
				PrincipalID:   actor.ID,
				PrincipalType: platform.PrincipalMember,
				Allow:         []string{platform.PermViewChannel, platform.PermSendMessages, platform.PermAttachFiles},
			},
			{
				PrincipalID:   c.cfg.SupportRoleID,
				PrincipalType: platform.PrincipalRole,
				Allow:         []string{platform.PermViewChannel, platform.PermSendMessages, platform.PermAttachFiles},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create channel: %w", err)
	}

	if err := c.registry.SetActive(ctx, actor.ID, channel.ID); err != nil {
		// Registration is what makes the ticket exist; without it the
		// channel is an orphan, so take it back down.
		if delErr := c.client.DeleteChannel(ctx, channel.ID); delErr != nil {
			c.logError("orphan channel cleanup failed", channel.ID, delErr)
		}
		return fmt.Errorf("register ticket: %w", err)
	}

	if _, err := c.client.SendMessage(ctx, channel.ID, platform.OutgoingMessage{
		Content: mention(actor.ID),
		Embeds:  []platform.Embed{summaryEmbed(reason, playerName, description)},
		Buttons: statusButtons(false, false),
	}); err != nil {
		c.logError("ticket summary message failed", channel.ID, err)
	}

	if err := c.client.Reply(ctx, ev.ID, "Your ticket has been created: #"+channel.Name); err != nil {
		c.logError("ticket creation reply failed", channel.ID, err)
	}

	obs.ObserveTicketTransition("created")
	obs.SetOpenTickets(c.registry.OpenCount())
	c.events.Publish(stream.Event{
		Kind:      stream.KindTicketCreated,
		GuildID:   c.cfg.GuildID,
		ChannelID: channel.ID,
		UserID:    actor.ID,
	})
	_ = audit.LogEvent(ctx, "ticket.create", map[string]any{
		"channel_id": channel.ID,
		"user_id":    actor.ID,
		"reason":     reason,
	})
	return nil
}

// Claim handles the claim button: first claim records the claimant, a
// repeat press by the claimant escalates, anyone else is rejected.
func (c *Controller) Claim(ctx context.Context, ev platform.ButtonEvent) error {
	unlock := c.channelLocks.lock(ev.ChannelID)
	defer unlock()

	if _, ok := c.registry.UserForChannel(ev.ChannelID); !ok {
		return fmt.Errorf("%w: %s", ErrNotTicketChannel, ev.ChannelID)
	}

	claimer, claimed := c.registry.Claimer(ev.ChannelID)
	switch {
	case claimed && claimer != ev.Actor.ID:
		return fmt.Errorf("%w: by %s", ErrAlreadyClaimed, claimer)
	case claimed:
		if c.registry.IsEscalated(ev.ChannelID) {
			return ErrAlreadyEscalated
		}
		return c.escalate(ctx, ev)
	default:
		return c.claim(ctx, ev)
	}
}

func (c *Controller) claim(ctx context.Context, ev platform.ButtonEvent) error {
	incumbent, ok, err := c.registry.SetClaimer(ctx, ev.ChannelID, ev.Actor.ID)
	if err != nil {
		return fmt.Errorf("record claimant: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: by %s", ErrAlreadyClaimed, incumbent)
	}

	if channel, err := c.client.FetchChannel(ctx, ev.ChannelID); err == nil {
		name := "claimed-" + strings.TrimPrefix(channel.Name, "ticket-")
		if err := c.client.RenameChannel(ctx, ev.ChannelID, name); err != nil {
			c.logError("claimed channel rename failed", ev.ChannelID, err)
		}
	}

	c.updateStatusMessage(ctx, ev.ChannelID, "Claimed by: "+ev.Actor.Tag, "yellow", statusButtons(true, false))

	if _, err := c.client.SendMessage(ctx, ev.ChannelID, platform.OutgoingMessage{
		Embeds: []platform.Embed{claimedEmbed(ev.Actor.Tag)},
	}); err != nil {
		c.logError("claim announcement failed", ev.ChannelID, err)
	}
	if err := c.client.Reply(ctx, ev.ID, "You have claimed this ticket"); err != nil {
		c.logError("claim reply failed", ev.ChannelID, err)
	}

	obs.ObserveTicketTransition("claimed")
	c.events.Publish(stream.Event{
		Kind:      stream.KindTicketClaimed,
		GuildID:   c.cfg.GuildID,
		ChannelID: ev.ChannelID,
		ActorID:   ev.Actor.ID,
	})
	_ = audit.LogEvent(ctx, "ticket.claim", map[string]any{
		"channel_id": ev.ChannelID,
		"claimer_id": ev.Actor.ID,
	})
	return nil
}

// escalate restricts the base support role, pings the senior tiers, and
// pins an updated status message. The escalation mark is set only after
// the visibility change and notification succeed.
func (c *Controller) escalate(ctx context.Context, ev platform.ButtonEvent) error {
	if err := c.client.EditChannelPermission(ctx, ev.ChannelID, platform.PermissionOverwrite{
		PrincipalID:   c.cfg.SupportRoleID,
		PrincipalType: platform.PrincipalRole,
		Deny:          []string{platform.PermViewChannel},
	}); err != nil {
		return fmt.Errorf("restrict support visibility: %w", err)
	}

	if _, err := c.client.SendMessage(ctx, ev.ChannelID, platform.OutgoingMessage{
		Content: fmt.Sprintf("Attention %s %s, this ticket requires your attention.",
			roleMention(c.cfg.FounderRoleID), roleMention(c.cfg.SeniorRoleID)),
	}); err != nil {
		return fmt.Errorf("notify senior support: %w", err)
	}

	c.registry.MarkEscalated(ev.ChannelID)
	c.updateStatusMessage(ctx, ev.ChannelID,
		"Claimed by: "+ev.Actor.Tag+" | Waiting for more support.", "blue", statusButtons(true, true))

	if err := c.client.Reply(ctx, ev.ID, "You have requested more support. Founders and senior staff have been notified."); err != nil {
		c.logError("escalation reply failed", ev.ChannelID, err)
	}

	obs.ObserveTicketTransition("escalated")
	c.events.Publish(stream.Event{
		Kind:      stream.KindTicketEscalated,
		GuildID:   c.cfg.GuildID,
		ChannelID: ev.ChannelID,
		ActorID:   ev.Actor.ID,
	})
	_ = audit.LogEvent(ctx, "ticket.escalate", map[string]any{
		"channel_id": ev.ChannelID,
		"claimer_id": ev.Actor.ID,
	})
	return nil
}

// Close is allowed only for the recorded claimant: transcript to the log
// channel, closure record, index removal, delayed channel deletion.
func (c *Controller) Close(ctx context.Context, ev platform.ButtonEvent) error {
	unlock := c.channelLocks.lock(ev.ChannelID)
	defer unlock()

	claimer, ok := c.registry.Claimer(ev.ChannelID)
	if !ok || claimer != ev.Actor.ID {
		return fmt.Errorf("%w: close requires the claimant", ErrNotClaimant)
	}

	if err := c.client.Reply(ctx, ev.ID, "Closing ticket..."); err != nil {
		c.logError("close reply failed", ev.ChannelID, err)
	}

	channel, err := c.client.FetchChannel(ctx, ev.ChannelID)
	if err != nil && !errors.Is(err, platform.ErrNotFound) {
		return fmt.Errorf("fetch channel: %w", err)
	}
	if err == nil {
		if err := c.deliverTranscript(ctx, channel, ev.Actor.Tag); err != nil {
			return err
		}
	}

	if err := c.registry.Clear(ctx, ev.ChannelID); err != nil {
		return fmt.Errorf("clear ticket indexes: %w", err)
	}

	if err := c.client.Reply(ctx, ev.ID, fmt.Sprintf("Ticket will be closed in %d seconds...", int(c.deleteDelay.Seconds()))); err != nil {
		c.logError("close countdown reply failed", ev.ChannelID, err)
	}

	obs.ObserveTicketTransition("closed")
	obs.SetOpenTickets(c.registry.OpenCount())
	c.events.Publish(stream.Event{
		Kind:      stream.KindTicketClosed,
		GuildID:   c.cfg.GuildID,
		ChannelID: ev.ChannelID,
		ActorID:   ev.Actor.ID,
	})
	_ = audit.LogEvent(ctx, "ticket.close", map[string]any{
		"channel_id": ev.ChannelID,
		"closer_id":  ev.Actor.ID,
	})

	c.scheduleDeletion(ev.ChannelID)
	return nil
}

func (c *Controller) deliverTranscript(ctx context.Context, channel platform.Channel, closerTag string) error {
	messages, err := c.client.FetchMessages(ctx, channel.ID, 0)
	if err != nil {
		return fmt.Errorf("fetch channel history: %w", err)
	}
	data, name, err := transcript.Render(channel, messages)
	if err != nil {
		return err
	}

	uploaded, err := c.client.SendMessage(ctx, c.cfg.LogChannelID, platform.OutgoingMessage{
		Files: []platform.File{{Name: name, Data: data}},
	})
	if err != nil {
		return fmt.Errorf("deliver transcript: %w", err)
	}

	record := platform.OutgoingMessage{Embeds: []platform.Embed{closedEmbed(channel.Name, closerTag)}}
	if len(uploaded.AttachmentURLs) > 0 {
		record.Buttons = []platform.Button{
			{Label: "Download Transcript", Style: platform.StyleLink, URL: uploaded.AttachmentURLs[0]},
		}
	}
	if _, err := c.client.SendMessage(ctx, c.cfg.LogChannelID, record); err != nil {
		c.logError("closure record failed", channel.ID, err)
	}
	return nil
}

// scheduleDeletion deletes the channel after the grace delay so the
// closer's final reply still renders. The channel may already be gone by
// then; existence is checked first instead of relying on a failed delete.
func (c *Controller) scheduleDeletion(channelID string) {
	time.AfterFunc(c.deleteDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
		defer cancel()

		if _, err := c.client.FetchChannel(ctx, channelID); err != nil {
			if !errors.Is(err, platform.ErrNotFound) {
				c.logError("channel existence check failed", channelID, err)
			}
			return
		}
		if err := c.client.DeleteChannel(ctx, channelID); err != nil {
			c.logError("channel deletion failed", channelID, err)
		}
	})
}

func (c *Controller) updateStatusMessage(ctx context.Context, channelID, footer, color string, buttons []platform.Button) {
	messages, err := c.client.FetchMessages(ctx, channelID, 10)
	if err != nil {
		c.logError("status message fetch failed", channelID, err)
		return
	}
	status, ok := findStatusMessage(messages)
	if !ok {
		return
	}
	embed := status.Embeds[0]
	embed.Footer = footer
	embed.Color = color
	updated, err := c.client.EditMessage(ctx, channelID, status.ID, platform.OutgoingMessage{
		Content: status.Content,
		Embeds:  []platform.Embed{embed},
		Buttons: buttons,
	})
	if err != nil {
		c.logError("status message edit failed", channelID, err)
		return
	}
	if err := c.client.PinMessage(ctx, channelID, updated.ID); err != nil {
		c.logError("status message pin failed", channelID, err)
	}
}

func (c *Controller) logError(msg, channelID string, err error) {
	obs.LogEvent(map[string]any{
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		"level":      "warn",
		"msg":        msg,
		"channel_id": channelID,
		"error":      err.Error(),
	})
}

func mention(userID string) string { return "<@" + userID + ">" }

func roleMention(roleID string) string { return "<@&" + roleID + ">" }
