// Package membership owns time-limited role grants: the persisted registry,
// the grant/revoke controller, and the expiry scheduler that survives
// restarts through startup reconciliation.
package membership

import (
	"errors"
	"time"
)

// Membership is one role grant tracked by the bot. ExpiresAt nil means the
// grant is permanent and no record is persisted for it. Identity is the
// (UserID, RoleID) pair within a guild.
type Membership struct {
	UserID    string     `json:"userId"`
	GuildID   string     `json:"guildId"`
	RoleID    string     `json:"roleId"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// Expired reports whether the grant's expiry has passed at the given time.
func (m Membership) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

var (
	// ErrInvalidInput covers missing target, role, or malformed duration.
	ErrInvalidInput = errors.New("membership: invalid input")
	// ErrRoleHeld means the target already holds the role being granted.
	ErrRoleHeld = errors.New("membership: role already held")
	// ErrRoleNotHeld means the target does not hold the role being revoked.
	ErrRoleNotHeld = errors.New("membership: role not held")
)
