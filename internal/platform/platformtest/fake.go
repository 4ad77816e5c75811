// Package platformtest provides an in-memory platform.Client for controller
// tests, mirroring the in-memory/durable split used for the KV store.
package platformtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"deskbot.org/internal/platform"
)

// RoleCall records one add/remove role invocation.
type RoleCall struct {
	GuildID string
	UserID  string
	RoleID  string
}

// Reply records one ephemeral interaction response.
type Reply struct {
	InteractionID string
	Content       string
}

// Fake implements platform.Client against in-memory state.
type Fake struct {
	mu sync.Mutex

	Members  map[string]platform.Member
	Roles    map[string]platform.Role
	Channels map[string]platform.Channel
	Messages map[string][]platform.Message

	CreateRequests  []platform.CreateChannelRequest
	DeletedChannels []string
	Renames         map[string]string
	PermEdits       map[string][]platform.PermissionOverwrite
	Pinned          map[string]bool
	Replies         []Reply
	AddRoleCalls    []RoleCall
	RemoveRoleCalls []RoleCall
	OpenedModals    []platform.Modal

	// Submissions queues modal results by interaction id; an absent entry
	// makes AwaitModal time out.
	Submissions map[string]platform.ModalSubmission

	// Fail* force the corresponding call to fail.
	FailAddRole       error
	FailRemoveRole    error
	FailCreateChannel error
	FailSendMessage   error

	nextID int
}

var _ platform.Client = (*Fake)(nil)

// New creates an empty fake.
func New() *Fake {
	return &Fake{
		Members:     make(map[string]platform.Member),
		Roles:       make(map[string]platform.Role),
		Channels:    make(map[string]platform.Channel),
		Messages:    make(map[string][]platform.Message),
		Renames:     make(map[string]string),
		PermEdits:   make(map[string][]platform.PermissionOverwrite),
		Pinned:      make(map[string]bool),
		Submissions: make(map[string]platform.ModalSubmission),
	}
}

func (f *Fake) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *Fake) CreateChannel(ctx context.Context, guildID string, req platform.CreateChannelRequest) (platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreateChannel != nil {
		return platform.Channel{}, f.FailCreateChannel
	}
	f.CreateRequests = append(f.CreateRequests, req)
	ch := platform.Channel{
		ID:       f.id("chan"),
		GuildID:  guildID,
		Name:     req.Name,
		ParentID: req.ParentID,
	}
	f.Channels[ch.ID] = ch
	return ch, nil
}

func (f *Fake) DeleteChannel(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Channels[channelID]; !ok {
		return fmt.Errorf("%w: channel %s", platform.ErrNotFound, channelID)
	}
	delete(f.Channels, channelID)
	f.DeletedChannels = append(f.DeletedChannels, channelID)
	return nil
}

func (f *Fake) FetchChannel(ctx context.Context, channelID string) (platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.Channels[channelID]
	if !ok {
		return platform.Channel{}, fmt.Errorf("%w: channel %s", platform.ErrNotFound, channelID)
	}
	return ch, nil
}

func (f *Fake) RenameChannel(ctx context.Context, channelID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.Channels[channelID]
	if !ok {
		return fmt.Errorf("%w: channel %s", platform.ErrNotFound, channelID)
	}
	ch.Name = name
	f.Channels[channelID] = ch
	f.Renames[channelID] = name
	return nil
}

func (f *Fake) EditChannelPermission(ctx context.Context, channelID string, overwrite platform.PermissionOverwrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PermEdits[channelID] = append(f.PermEdits[channelID], overwrite)
	return nil
}

func (f *Fake) SendMessage(ctx context.Context, channelID string, msg platform.OutgoingMessage) (platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSendMessage != nil {
		return platform.Message{}, f.FailSendMessage
	}
	out := platform.Message{
		ID:        f.id("msg"),
		ChannelID: channelID,
		Content:   msg.Content,
		Embeds:    msg.Embeds,
		Buttons:   msg.Buttons,
		CreatedAt: time.Now().UTC(),
	}
	f.Messages[channelID] = append(f.Messages[channelID], out)
	return out, nil
}

func (f *Fake) EditMessage(ctx context.Context, channelID, messageID string, msg platform.OutgoingMessage) (platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.Messages[channelID]
	for i, m := range msgs {
		if m.ID == messageID {
			m.Content = msg.Content
			m.Embeds = msg.Embeds
			m.Buttons = msg.Buttons
			msgs[i] = m
			return m, nil
		}
	}
	return platform.Message{}, fmt.Errorf("%w: message %s", platform.ErrNotFound, messageID)
}

func (f *Fake) PinMessage(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pinned[messageID] = true
	return nil
}

func (f *Fake) FetchMessages(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.Messages[channelID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]platform.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (f *Fake) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAddRole != nil {
		return f.FailAddRole
	}
	f.AddRoleCalls = append(f.AddRoleCalls, RoleCall{guildID, userID, roleID})
	m, ok := f.Members[userID]
	if !ok {
		return fmt.Errorf("%w: member %s", platform.ErrNotFound, userID)
	}
	if !m.HasRole(roleID) {
		m.Roles = append(m.Roles, roleID)
		f.Members[userID] = m
	}
	return nil
}

func (f *Fake) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailRemoveRole != nil {
		return f.FailRemoveRole
	}
	f.RemoveRoleCalls = append(f.RemoveRoleCalls, RoleCall{guildID, userID, roleID})
	m, ok := f.Members[userID]
	if !ok {
		return fmt.Errorf("%w: member %s", platform.ErrNotFound, userID)
	}
	roles := m.Roles[:0]
	for _, r := range m.Roles {
		if r != roleID {
			roles = append(roles, r)
		}
	}
	m.Roles = roles
	f.Members[userID] = m
	return nil
}

func (f *Fake) FetchMember(ctx context.Context, guildID, userID string) (platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.Members[userID]
	if !ok {
		return platform.Member{}, fmt.Errorf("%w: member %s", platform.ErrNotFound, userID)
	}
	return m, nil
}

func (f *Fake) FetchRole(ctx context.Context, guildID, roleID string) (platform.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.Roles[roleID]
	if !ok {
		return platform.Role{}, fmt.Errorf("%w: role %s", platform.ErrNotFound, roleID)
	}
	return r, nil
}

func (f *Fake) OpenModal(ctx context.Context, interactionID string, modal platform.Modal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenedModals = append(f.OpenedModals, modal)
	return nil
}

func (f *Fake) AwaitModal(ctx context.Context, interactionID string, timeout time.Duration) (platform.ModalSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.Submissions[interactionID]; ok {
		return sub, nil
	}
	return platform.ModalSubmission{}, fmt.Errorf("%w: modal submission", platform.ErrTimeout)
}

func (f *Fake) Reply(ctx context.Context, interactionID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Replies = append(f.Replies, Reply{InteractionID: interactionID, Content: content})
	return nil
}

// RepliesSnapshot copies the recorded replies under the lock, safe to poll
// while handler goroutines run.
func (f *Fake) RepliesSnapshot() []Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Reply, len(f.Replies))
	copy(out, f.Replies)
	return out
}

// DeletedCount reports channel deletions under the lock, safe to poll
// while timers run.
func (f *Fake) DeletedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.DeletedChannels)
}

// RemoveRoleCount reports remove-role calls under the lock, safe to poll
// while timers run.
func (f *Fake) RemoveRoleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.RemoveRoleCalls)
}

// LastMessage returns the most recent message in a channel, if any.
func (f *Fake) LastMessage(channelID string) (platform.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.Messages[channelID]
	if len(msgs) == 0 {
		return platform.Message{}, false
	}
	return msgs[len(msgs)-1], true
}
