package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"deskbot.org/internal/obs"
	"deskbot.org/internal/platform"
)

// envelope is the wire form of one inbound gateway event.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Events long-polls the gateway endpoint and fans events into a channel.
// Malformed or unknown events are logged and skipped; transport errors back
// off and retry until ctx is cancelled.
func (c *Client) Events(ctx context.Context) (<-chan platform.Event, error) {
	out := make(chan platform.Event, 16)

	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			var batch []envelope
			err := c.do(ctx, "gateway_poll", http.MethodGet, "/gateway/events?wait=30s", nil, &batch)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				obs.LogEvent(map[string]any{
					"ts":    time.Now().UTC().Format(time.RFC3339Nano),
					"level": "warn",
					"msg":   "gateway poll failed",
					"error": err.Error(),
				})
				select {
				case <-ctx.Done():
					return
				case <-time.After(2 * time.Second):
				}
				continue
			}
			for _, env := range batch {
				ev, ok := decodeEvent(env)
				if !ok {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case out <- ev:
				}
			}
		}
	}()

	return out, nil
}

func decodeEvent(env envelope) (platform.Event, bool) {
	switch env.Type {
	case "command":
		var ev platform.CommandEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, false
		}
		return ev, true
	case "button":
		var ev platform.ButtonEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, false
		}
		return ev, true
	default:
		return nil, false
	}
}
