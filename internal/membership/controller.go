package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"deskbot.org/internal/audit"
	"deskbot.org/internal/duration"
	"deskbot.org/internal/obs"
	"deskbot.org/internal/platform"
	"deskbot.org/internal/stream"
)

const removalTimeout = 30 * time.Second

// Config carries the guild and audit channel the controller operates on.
type Config struct {
	GuildID      string
	LogChannelID string
}

// Controller orchestrates grants, revocations, and expiries against the
// registry and the platform. In-process timers are an optimization; the
// persisted records are the real schedule and ReconcileOnStart is the
// correctness backstop after a restart.
type Controller struct {
	client   platform.Client
	registry *Registry
	cfg      Config
	events   *stream.Stream
	now      func() time.Time

	timerMu sync.Mutex
	timers  map[string]*time.Timer
}

// NewController wires the controller. events may be nil.
func NewController(client platform.Client, registry *Registry, cfg Config, events *stream.Stream) *Controller {
	return &Controller{
		client:   client,
		registry: registry,
		cfg:      cfg,
		events:   events,
		now:      time.Now,
		timers:   make(map[string]*time.Timer),
	}
}

// AssignRequest is a grant command.
type AssignRequest struct {
	Interaction  platform.Interaction
	TargetUserID string
	RoleID       string
	Duration     string
}

// RevokeRequest is a manual revocation command.
type RevokeRequest struct {
	Interaction  platform.Interaction
	TargetUserID string
	RoleID       string
}

// Assign grants a role to the target, persisting a record and scheduling
// removal when the duration is time-limited. No failure path leaves a
// phantom record or a scheduled timer behind.
func (c *Controller) Assign(ctx context.Context, req AssignRequest) error {
	if strings.TrimSpace(req.TargetUserID) == "" || strings.TrimSpace(req.RoleID) == "" || strings.TrimSpace(req.Duration) == "" {
		return fmt.Errorf("%w: user, role, and duration are required", ErrInvalidInput)
	}

	dur, timed, err := duration.Parse(req.Duration)
	if err != nil {
		return err
	}

	member, err := c.client.FetchMember(ctx, c.cfg.GuildID, req.TargetUserID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return fmt.Errorf("%w: unknown user %s", ErrInvalidInput, req.TargetUserID)
		}
		return fmt.Errorf("fetch member: %w", err)
	}
	if member.HasRole(req.RoleID) {
		return fmt.Errorf("%w: %s already has role %s", ErrRoleHeld, req.TargetUserID, req.RoleID)
	}

	role, err := c.client.FetchRole(ctx, c.cfg.GuildID, req.RoleID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return fmt.Errorf("%w: unknown role %s", ErrInvalidInput, req.RoleID)
		}
		return fmt.Errorf("fetch role: %w", err)
	}

	if err := c.client.AddRole(ctx, c.cfg.GuildID, req.TargetUserID, req.RoleID); err != nil {
		c.logChange(ctx, member, role, "added", req.Duration, false, "failed to assign the role")
		obs.ObserveMembershipAction("grant", "failure")
		return fmt.Errorf("add role: %w", err)
	}

	c.logChange(ctx, member, role, "added", req.Duration, true, "")
	obs.ObserveMembershipAction("grant", "success")
	c.events.Publish(stream.Event{
		Kind:    stream.KindMembershipGranted,
		GuildID: c.cfg.GuildID,
		UserID:  req.TargetUserID,
		RoleID:  req.RoleID,
		ActorID: req.Interaction.Actor.ID,
		Detail:  req.Duration,
	})

	if !timed {
		return nil
	}

	expiresAt := c.now().UTC().Add(dur)
	record := Membership{
		UserID:    req.TargetUserID,
		GuildID:   c.cfg.GuildID,
		RoleID:    req.RoleID,
		ExpiresAt: &expiresAt,
	}
	if err := c.registry.Add(ctx, record); err != nil {
		// The role is applied but the record is not durable; surface the
		// error so the actor retries, and leave no timer behind.
		return fmt.Errorf("persist membership: %w", err)
	}
	c.scheduleRemoval(record, dur)
	return nil
}

// Revoke removes a role the target currently holds and deletes any
// matching persisted record.
func (c *Controller) Revoke(ctx context.Context, req RevokeRequest) error {
	if strings.TrimSpace(req.TargetUserID) == "" || strings.TrimSpace(req.RoleID) == "" {
		return fmt.Errorf("%w: user and role are required", ErrInvalidInput)
	}

	member, err := c.client.FetchMember(ctx, c.cfg.GuildID, req.TargetUserID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return fmt.Errorf("%w: unknown user %s", ErrInvalidInput, req.TargetUserID)
		}
		return fmt.Errorf("fetch member: %w", err)
	}
	if !member.HasRole(req.RoleID) {
		return fmt.Errorf("%w: %s does not have role %s", ErrRoleNotHeld, req.TargetUserID, req.RoleID)
	}

	role, err := c.client.FetchRole(ctx, c.cfg.GuildID, req.RoleID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return fmt.Errorf("%w: unknown role %s", ErrInvalidInput, req.RoleID)
		}
		return fmt.Errorf("fetch role: %w", err)
	}

	if err := c.client.RemoveRole(ctx, c.cfg.GuildID, req.TargetUserID, req.RoleID); err != nil {
		c.logChange(ctx, member, role, "removed", "", false, "failed to remove the role")
		obs.ObserveMembershipAction("revoke", "failure")
		return fmt.Errorf("remove role: %w", err)
	}

	if err := c.registry.Remove(ctx, req.TargetUserID, req.RoleID); err != nil {
		return fmt.Errorf("delete membership record: %w", err)
	}
	c.cancelTimer(req.TargetUserID, req.RoleID)

	c.logChange(ctx, member, role, "removed", "", true, "")
	obs.ObserveMembershipAction("revoke", "success")
	c.events.Publish(stream.Event{
		Kind:    stream.KindMembershipRevoked,
		GuildID: c.cfg.GuildID,
		UserID:  req.TargetUserID,
		RoleID:  req.RoleID,
		ActorID: req.Interaction.Actor.ID,
	})
	return nil
}

// RemoveExpired applies one expiry: remove the role and delete the record.
// Missing member or role is "nothing to do". Safe to call any number of
// times for the same (guild, user, role); a stale timer firing after a
// manual revoke lands here and does nothing.
func (c *Controller) RemoveExpired(ctx context.Context, guildID, userID, roleID string) error {
	ctx = audit.WithActor(ctx, "scheduler")

	member, err := c.client.FetchMember(ctx, guildID, userID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return c.expireNothingToDo(ctx, userID, roleID, "member no longer in guild")
		}
		return fmt.Errorf("fetch member: %w", err)
	}

	role, err := c.client.FetchRole(ctx, guildID, roleID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return c.expireNothingToDo(ctx, userID, roleID, "role no longer exists")
		}
		return fmt.Errorf("fetch role: %w", err)
	}

	if !member.HasRole(roleID) {
		return c.expireNothingToDo(ctx, userID, roleID, "role already removed")
	}

	if err := c.client.RemoveRole(ctx, guildID, userID, roleID); err != nil {
		if !errors.Is(err, platform.ErrNotFound) {
			// Keep the record; the next startup reconciliation retries.
			obs.ObserveMembershipAction("expire", "failure")
			return fmt.Errorf("remove role: %w", err)
		}
	}

	if err := c.registry.Remove(ctx, userID, roleID); err != nil {
		return fmt.Errorf("delete membership record: %w", err)
	}

	c.logChange(ctx, member, role, "expired", "", true, "")
	obs.ObserveMembershipAction("expire", "success")
	c.events.Publish(stream.Event{
		Kind:    stream.KindMembershipExpired,
		GuildID: guildID,
		UserID:  userID,
		RoleID:  roleID,
	})
	return nil
}

func (c *Controller) expireNothingToDo(ctx context.Context, userID, roleID, reason string) error {
	if err := c.registry.Remove(ctx, userID, roleID); err != nil {
		return fmt.Errorf("delete membership record: %w", err)
	}
	_ = audit.LogEvent(ctx, "membership.expire.noop", map[string]any{
		"user_id": userID,
		"role_id": roleID,
		"reason":  reason,
	})
	obs.ObserveMembershipAction("expire", "noop")
	return nil
}

// ReconcileOnStart catches up on expirations missed while the process was
// down and re-arms timers for the rest. Must run before the gateway loop.
func (c *Controller) ReconcileOnStart(ctx context.Context) error {
	memberships, err := c.registry.Load(ctx)
	if err != nil {
		return fmt.Errorf("load memberships: %w", err)
	}

	now := c.now().UTC()
	for _, m := range memberships {
		if m.ExpiresAt == nil {
			continue
		}
		if m.Expired(now) {
			if err := c.RemoveExpired(ctx, m.GuildID, m.UserID, m.RoleID); err != nil {
				obs.LogEvent(map[string]any{
					"ts":      now.Format(time.RFC3339Nano),
					"level":   "error",
					"msg":     "startup expiry removal failed",
					"user_id": m.UserID,
					"role_id": m.RoleID,
					"error":   err.Error(),
				})
			}
			continue
		}
		c.scheduleRemoval(m, m.ExpiresAt.Sub(now))
	}
	return nil
}

// Stop cancels all pending timers. Pending expirations are re-armed by the
// next ReconcileOnStart.
func (c *Controller) Stop() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	for key, timer := range c.timers {
		timer.Stop()
		delete(c.timers, key)
	}
}

func timerKey(userID, roleID string) string { return userID + "/" + roleID }

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (c *Controller) scheduleRemoval(m Membership, delay time.Duration) {
	key := timerKey(m.UserID, m.RoleID)

	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if existing, ok := c.timers[key]; ok {
		existing.Stop()
	}

	obs.LogEvent(map[string]any{
		"ts":      c.now().UTC().Format(time.RFC3339Nano),
		"level":   "info",
		"msg":     "scheduling role removal",
		"user_id": m.UserID,
		"role_id": m.RoleID,
		"delay":   delay.String(),
	})

	c.timers[key] = time.AfterFunc(delay, func() {
		c.timerMu.Lock()
		delete(c.timers, key)
		c.timerMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), removalTimeout)
		defer cancel()
		if err := c.RemoveExpired(ctx, m.GuildID, m.UserID, m.RoleID); err != nil {
			obs.LogEvent(map[string]any{
				"ts":      time.Now().UTC().Format(time.RFC3339Nano),
				"level":   "error",
				"msg":     "scheduled expiry removal failed",
				"user_id": m.UserID,
				"role_id": m.RoleID,
				"error":   err.Error(),
			})
		}
	})
}

func (c *Controller) cancelTimer(userID, roleID string) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if timer, ok := c.timers[timerKey(userID, roleID)]; ok {
		timer.Stop()
		delete(c.timers, timerKey(userID, roleID))
	}
}

// logChange posts the audit embed to the membership log channel and mirrors
// it as a structured audit event. Both are fire-and-forget.
func (c *Controller) logChange(ctx context.Context, member platform.Member, role platform.Role, action, dur string, success bool, errorMessage string) {
	status := "Success"
	color := "#00ff00"
	if action == "removed" || action == "expired" {
		color = "#ff0000"
	}
	if !success {
		status = "Failed"
		color = "#ff6b6b"
	}

	actor := "scheduler"
	if id, ok := audit.ActorFromContext(ctx); ok {
		actor = id
	}

	fields := []platform.EmbedField{
		{Name: "User", Value: fmt.Sprintf("%s (%s)", member.ID, member.Tag), Inline: true},
		{Name: "Role", Value: role.Name, Inline: true},
		{Name: "Action By", Value: actor, Inline: true},
		{Name: "Status", Value: status, Inline: true},
	}
	if dur != "" && action == "added" {
		value := dur
		if strings.EqualFold(dur, duration.Permanent) {
			value = "Permanent"
		}
		fields = append(fields, platform.EmbedField{Name: "Duration", Value: value, Inline: true})
	}
	if !success && errorMessage != "" {
		fields = append(fields, platform.EmbedField{Name: "Error", Value: errorMessage})
	}

	embed := platform.Embed{
		Title:     "Membership Role " + titleCase(action),
		Color:     color,
		Thumbnail: member.AvatarURL,
		Fields:    fields,
		Timestamp: c.now().UTC(),
	}
	if _, err := c.client.SendMessage(ctx, c.cfg.LogChannelID, platform.OutgoingMessage{Embeds: []platform.Embed{embed}}); err != nil {
		obs.LogEvent(map[string]any{
			"ts":    c.now().UTC().Format(time.RFC3339Nano),
			"level": "warn",
			"msg":   "membership log message failed",
			"error": err.Error(),
		})
	}

	_ = audit.LogEvent(ctx, "membership."+action, map[string]any{
		"user_id": member.ID,
		"role_id": role.ID,
		"success": success,
		"error":   errorMessage,
	})
}
