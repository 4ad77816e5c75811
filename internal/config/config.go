// Package config loads bot configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Config carries everything the bot needs at startup. All identifiers are
// platform snowflake-style strings.
type Config struct {
	// Platform credentials and endpoint.
	PlatformToken   string
	PlatformBaseURL string
	GuildID         string

	// Ticket wiring.
	TicketCategoryID   string
	SupportRoleID      string
	SeniorRoleID       string
	FounderRoleID      string
	TicketLogChannelID string

	// Membership wiring.
	MembershipLogChannelID string

	// Persistence. Empty DSN selects the in-memory store.
	PostgresDSN string

	// Ops HTTP surface.
	OpsAddr string

	// Env is "development" unless overridden.
	Env string
}

// Load reads configuration from the environment and validates required
// variables up front so misconfiguration fails at startup, not mid-command.
func Load() (Config, error) {
	cfg := Config{
		PlatformBaseURL: getenv("DESKBOT_PLATFORM_BASE_URL", "https://platform.local/api"),
		PostgresDSN:     os.Getenv("DESKBOT_PG_DSN"),
		OpsAddr:         getenv("DESKBOT_OPS_ADDR", ":8080"),
		Env:             getenv("DESKBOT_ENV", "development"),
	}

	var err error
	for _, v := range []struct {
		name string
		dst  *string
	}{
		{"DESKBOT_PLATFORM_TOKEN", &cfg.PlatformToken},
		{"DESKBOT_GUILD_ID", &cfg.GuildID},
		{"DESKBOT_TICKET_CATEGORY_ID", &cfg.TicketCategoryID},
		{"DESKBOT_SUPPORT_ROLE_ID", &cfg.SupportRoleID},
		{"DESKBOT_SENIOR_ROLE_ID", &cfg.SeniorRoleID},
		{"DESKBOT_FOUNDER_ROLE_ID", &cfg.FounderRoleID},
		{"DESKBOT_TICKET_LOG_CHANNEL_ID", &cfg.TicketLogChannelID},
		{"DESKBOT_MEMBERSHIP_LOG_CHANNEL_ID", &cfg.MembershipLogChannelID},
	} {
		*v.dst, err = require(v.name)
		if err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func require(name string) (string, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", fmt.Errorf("you must set the %s environment variable", name)
	}
	return v, nil
}

func getenv(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}
