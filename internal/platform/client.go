package platform

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the channel, member, role, or message no longer
	// exists on the platform.
	ErrNotFound = errors.New("platform: not found")
	// ErrUnavailable means the platform rejected or failed the call.
	ErrUnavailable = errors.New("platform: unavailable")
	// ErrTimeout means a bounded wait (modal submission) elapsed.
	ErrTimeout = errors.New("platform: timed out")
)

// Client is the command sink side of the chat platform.
type Client interface {
	CreateChannel(ctx context.Context, guildID string, req CreateChannelRequest) (Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error
	FetchChannel(ctx context.Context, channelID string) (Channel, error)
	RenameChannel(ctx context.Context, channelID, name string) error
	EditChannelPermission(ctx context.Context, channelID string, overwrite PermissionOverwrite) error

	SendMessage(ctx context.Context, channelID string, msg OutgoingMessage) (Message, error)
	EditMessage(ctx context.Context, channelID, messageID string, msg OutgoingMessage) (Message, error)
	PinMessage(ctx context.Context, channelID, messageID string) error
	FetchMessages(ctx context.Context, channelID string, limit int) ([]Message, error)

	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	FetchMember(ctx context.Context, guildID, userID string) (Member, error)
	FetchRole(ctx context.Context, guildID, roleID string) (Role, error)

	// OpenModal shows a form to the interaction's actor; AwaitModal blocks
	// until the actor submits it or the timeout elapses (ErrTimeout).
	OpenModal(ctx context.Context, interactionID string, modal Modal) error
	AwaitModal(ctx context.Context, interactionID string, timeout time.Duration) (ModalSubmission, error)

	// Reply sends an ephemeral response to the interaction's actor.
	Reply(ctx context.Context, interactionID, content string) error
}

// Gateway is the event source side of the chat platform.
type Gateway interface {
	// Events delivers inbound events until ctx is cancelled; the channel is
	// closed afterwards.
	Events(ctx context.Context) (<-chan Event, error)
}
