// Package platform defines the chat platform contract the controllers are
// written against. The platform is an event source and command sink; all
// engineering on this side assumes it is a black box behind Client.
package platform

import "time"

// Member is a guild member with its currently held roles.
type Member struct {
	ID        string   `json:"id"`
	GuildID   string   `json:"guild_id"`
	Username  string   `json:"username"`
	Tag       string   `json:"tag"`
	AvatarURL string   `json:"avatar_url,omitempty"`
	Roles     []string `json:"roles"`
}

// HasRole reports whether the member currently holds roleID.
func (m Member) HasRole(roleID string) bool {
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// Role is a guild role.
type Role struct {
	ID      string `json:"id"`
	GuildID string `json:"guild_id"`
	Name    string `json:"name"`
}

// Channel is a text channel, optionally parented to a category.
type Channel struct {
	ID       string `json:"id"`
	GuildID  string `json:"guild_id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

// Permission names used in channel overwrites.
const (
	PermViewChannel  = "view_channel"
	PermSendMessages = "send_messages"
	PermAttachFiles  = "attach_files"
)

// Overwrite principal kinds.
const (
	PrincipalRole   = "role"
	PrincipalMember = "member"
)

// PermissionOverwrite grants or denies channel permissions to a principal.
type PermissionOverwrite struct {
	PrincipalID   string   `json:"principal_id"`
	PrincipalType string   `json:"principal_type"`
	Allow         []string `json:"allow,omitempty"`
	Deny          []string `json:"deny,omitempty"`
}

// CreateChannelRequest describes a new ticket channel.
type CreateChannelRequest struct {
	Name       string                `json:"name"`
	ParentID   string                `json:"parent_id,omitempty"`
	Overwrites []PermissionOverwrite `json:"overwrites,omitempty"`
}

// EmbedField is one titled field inside an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Embed is a rich message block.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       string       `json:"color,omitempty"`
	Footer      string       `json:"footer,omitempty"`
	Thumbnail   string       `json:"thumbnail,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Timestamp   time.Time    `json:"timestamp,omitempty"`
}

// Button styles.
const (
	StylePrimary   = "primary"
	StyleSecondary = "secondary"
	StyleDanger    = "danger"
	StyleLink      = "link"
)

// Button is one interactive component attached to a message.
type Button struct {
	ID       string `json:"id,omitempty"`
	Label    string `json:"label"`
	Style    string `json:"style"`
	Disabled bool   `json:"disabled,omitempty"`
	URL      string `json:"url,omitempty"`
}

// File is an attachment delivered with a message.
type File struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// OutgoingMessage is the payload for SendMessage and EditMessage.
type OutgoingMessage struct {
	Content string   `json:"content,omitempty"`
	Embeds  []Embed  `json:"embeds,omitempty"`
	Buttons []Button `json:"buttons,omitempty"`
	Files   []File   `json:"files,omitempty"`
}

// Message is a message as returned by the platform.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	AuthorID  string    `json:"author_id"`
	AuthorTag string    `json:"author_tag"`
	Content   string    `json:"content,omitempty"`
	Embeds    []Embed   `json:"embeds,omitempty"`
	Buttons   []Button  `json:"buttons,omitempty"`
	Pinned    bool      `json:"pinned,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// AttachmentURLs point at files the platform stored for this message.
	AttachmentURLs []string `json:"attachment_urls,omitempty"`
}

// ModalField describes one input of a modal form.
type ModalField struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Required  bool   `json:"required"`
	Paragraph bool   `json:"paragraph,omitempty"`
}

// Modal is a structured input form shown to one actor.
type Modal struct {
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Fields []ModalField `json:"fields"`
}

// ModalSubmission carries the submitted field values keyed by field id.
type ModalSubmission struct {
	InteractionID string            `json:"interaction_id"`
	Values        map[string]string `json:"values"`
}

// Interaction identifies one inbound actor action.
type Interaction struct {
	ID        string `json:"id"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	Actor     Member `json:"actor"`
}

// Event is an inbound platform event. Exactly one of the concrete types
// below is delivered per dispatch.
type Event interface{ isEvent() }

// CommandEvent is a slash command invocation.
type CommandEvent struct {
	Interaction
	Command string            `json:"command"`
	Options map[string]string `json:"options,omitempty"`
}

func (CommandEvent) isEvent() {}

// ButtonEvent is a button press on a message this bot posted.
type ButtonEvent struct {
	Interaction
	ButtonID string `json:"button_id"`
}

func (ButtonEvent) isEvent() {}
