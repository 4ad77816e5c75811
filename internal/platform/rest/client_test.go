package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"deskbot.org/internal/platform"
)

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/channels/c1/messages" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bot tok" {
			t.Fatalf("unexpected auth header: %q", got)
		}
		var msg platform.OutgoingMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if msg.Content != "hello" {
			t.Fatalf("unexpected content: %q", msg.Content)
		}
		_ = json.NewEncoder(w).Encode(platform.Message{ID: "m1", ChannelID: "c1", Content: "hello"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	msg, err := c.SendMessage(context.Background(), "c1", platform.OutgoingMessage{Content: "hello"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ID != "m1" {
		t.Fatalf("unexpected message id: %q", msg.ID)
	}
}

func TestNotFoundMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.FetchMember(context.Background(), "g1", "u1")
	if !errors.Is(err, platform.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServerErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	err := c.AddRole(context.Background(), "g1", "u1", "r1")
	if !errors.Is(err, platform.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestFetchChannel(t *testing.T) {
	existing := map[string]bool{"/channels/c1": true}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !existing[r.URL.Path] {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(platform.Channel{ID: "c1", Name: "ticket-alice"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	ch, err := c.FetchChannel(context.Background(), "c1")
	if err != nil {
		t.Fatalf("FetchChannel: %v", err)
	}
	if ch.Name != "ticket-alice" {
		t.Fatalf("unexpected channel: %+v", ch)
	}
	if _, err := c.FetchChannel(context.Background(), "gone"); !errors.Is(err, platform.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
