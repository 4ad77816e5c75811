// Package rest implements platform.Client over the platform's HTTP API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"deskbot.org/internal/obs"
	"deskbot.org/internal/platform"
)

const defaultTimeout = 15 * time.Second

// Client talks to the platform REST API with a shared token-bucket limiter
// so bursts of bot activity stay inside the platform's rate budget.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

var _ platform.Client = (*Client)(nil)

// Option configures Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying transport, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithRateLimit overrides the outbound request budget.
func WithRateLimit(perSecond, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// New creates a client for the given API base URL and bot token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(25), 50),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do performs one API call: waits on the limiter, sends the JSON body, and
// decodes into out (when non-nil). Platform errors are mapped onto the
// package sentinels.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", platform.ErrUnavailable, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", platform.ErrUnavailable, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", platform.ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		obs.ObservePlatformRequest(op, "error", time.Since(start))
		return fmt.Errorf("%w: %v", platform.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	obs.ObservePlatformRequest(op, strconv.Itoa(resp.StatusCode), time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", platform.ErrNotFound, method, path)
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: status %d: %s", platform.ErrUnavailable, method, path, resp.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", platform.ErrUnavailable, err)
	}
	return nil
}

func (c *Client) CreateChannel(ctx context.Context, guildID string, req platform.CreateChannelRequest) (platform.Channel, error) {
	var ch platform.Channel
	err := c.do(ctx, "create_channel", http.MethodPost, "/guilds/"+guildID+"/channels", req, &ch)
	return ch, err
}

func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	return c.do(ctx, "delete_channel", http.MethodDelete, "/channels/"+channelID, nil, nil)
}

func (c *Client) FetchChannel(ctx context.Context, channelID string) (platform.Channel, error) {
	var ch platform.Channel
	err := c.do(ctx, "fetch_channel", http.MethodGet, "/channels/"+channelID, nil, &ch)
	return ch, err
}

func (c *Client) RenameChannel(ctx context.Context, channelID, name string) error {
	return c.do(ctx, "rename_channel", http.MethodPatch, "/channels/"+channelID,
		map[string]string{"name": name}, nil)
}

func (c *Client) EditChannelPermission(ctx context.Context, channelID string, overwrite platform.PermissionOverwrite) error {
	return c.do(ctx, "edit_permission", http.MethodPut,
		"/channels/"+channelID+"/permissions/"+overwrite.PrincipalID, overwrite, nil)
}

func (c *Client) SendMessage(ctx context.Context, channelID string, msg platform.OutgoingMessage) (platform.Message, error) {
	var out platform.Message
	err := c.do(ctx, "send_message", http.MethodPost, "/channels/"+channelID+"/messages", msg, &out)
	return out, err
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, msg platform.OutgoingMessage) (platform.Message, error) {
	var out platform.Message
	err := c.do(ctx, "edit_message", http.MethodPatch,
		"/channels/"+channelID+"/messages/"+messageID, msg, &out)
	return out, err
}

func (c *Client) PinMessage(ctx context.Context, channelID, messageID string) error {
	return c.do(ctx, "pin_message", http.MethodPut,
		"/channels/"+channelID+"/pins/"+messageID, nil, nil)
}

func (c *Client) FetchMessages(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	path := "/channels/" + channelID + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []platform.Message
	err := c.do(ctx, "fetch_messages", http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return c.do(ctx, "add_role", http.MethodPut,
		"/guilds/"+guildID+"/members/"+userID+"/roles/"+roleID, nil, nil)
}

func (c *Client) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return c.do(ctx, "remove_role", http.MethodDelete,
		"/guilds/"+guildID+"/members/"+userID+"/roles/"+roleID, nil, nil)
}

func (c *Client) FetchMember(ctx context.Context, guildID, userID string) (platform.Member, error) {
	var out platform.Member
	err := c.do(ctx, "fetch_member", http.MethodGet, "/guilds/"+guildID+"/members/"+userID, nil, &out)
	return out, err
}

func (c *Client) FetchRole(ctx context.Context, guildID, roleID string) (platform.Role, error) {
	var out platform.Role
	err := c.do(ctx, "fetch_role", http.MethodGet, "/guilds/"+guildID+"/roles/"+roleID, nil, &out)
	return out, err
}

func (c *Client) OpenModal(ctx context.Context, interactionID string, modal platform.Modal) error {
	return c.do(ctx, "open_modal", http.MethodPost, "/interactions/"+interactionID+"/modal", modal, nil)
}

// AwaitModal long-polls the submission endpoint until the actor submits or
// the bounded wait elapses.
func (c *Client) AwaitModal(ctx context.Context, interactionID string, timeout time.Duration) (platform.ModalSubmission, error) {
	deadline := time.Now().Add(timeout)
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for {
		var out platform.ModalSubmission
		path := "/interactions/" + interactionID + "/modal-submission?wait=" +
			url.QueryEscape(time.Until(deadline).Truncate(time.Second).String())
		err := c.do(waitCtx, "await_modal", http.MethodGet, path, nil, &out)
		if err == nil && len(out.Values) > 0 {
			return out, nil
		}
		if waitCtx.Err() != nil || time.Now().After(deadline) {
			return platform.ModalSubmission{}, fmt.Errorf("%w: modal submission after %s", platform.ErrTimeout, timeout)
		}
		if err != nil && !isNotFound(err) {
			return platform.ModalSubmission{}, err
		}
		// Not submitted yet; poll again shortly.
		select {
		case <-waitCtx.Done():
			return platform.ModalSubmission{}, fmt.Errorf("%w: modal submission after %s", platform.ErrTimeout, timeout)
		case <-time.After(time.Second):
		}
	}
}

func (c *Client) Reply(ctx context.Context, interactionID, content string) error {
	return c.do(ctx, "reply", http.MethodPost, "/interactions/"+interactionID+"/reply",
		map[string]any{"content": content, "ephemeral": true}, nil)
}

func isNotFound(err error) bool {
	return errors.Is(err, platform.ErrNotFound)
}
