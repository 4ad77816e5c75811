package opsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"deskbot.org/internal/auth"
	"deskbot.org/internal/kv/memory"
	"deskbot.org/internal/membership"
	"deskbot.org/internal/stream"
	"deskbot.org/internal/ticket"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

type recordingRevoker struct {
	requests []membership.RevokeRequest
	err      error
}

func (r *recordingRevoker) Revoke(ctx context.Context, req membership.RevokeRequest) error {
	r.requests = append(r.requests, req)
	return r.err
}

func newTestAPI(t *testing.T, revoker Revoker) *apiClient {
	t.Helper()

	t.Setenv("DESKBOT_AUTH_SECRET", "test-secret")
	auth.ResetSecretCache()
	t.Cleanup(auth.ResetSecretCache)

	store := memory.New()
	ctx := context.Background()
	tickets, err := ticket.NewRegistry(ctx, store)
	if err != nil {
		t.Fatalf("ticket.NewRegistry: %v", err)
	}
	if err := tickets.SetActive(ctx, "user-1", "chan-1"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if _, _, err := tickets.SetClaimer(ctx, "chan-1", "staff-1"); err != nil {
		t.Fatalf("SetClaimer: %v", err)
	}

	memberships := membership.NewRegistry(store)
	if err := memberships.Add(ctx, membership.Membership{
		UserID:  "user-1",
		GuildID: "guild-1",
		RoleID:  "role-vip",
	}); err != nil {
		t.Fatalf("memberships.Add: %v", err)
	}

	api := New(Options{
		Probe:       ReadyProbe{Store: store},
		Version:     "test",
		Stream:      stream.New(),
		Memberships: memberships,
		Revoker:     revoker,
		Tickets:     tickets,
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{baseURL: srv.URL, client: srv.Client(), t: t}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) obtainToken(user string, roles []string) string {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/v1/auth/token", map[string]any{
		"user":  user,
		"roles": roles,
	}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	return payload.Token
}

func TestHealthAndReady(t *testing.T) {
	c := newTestAPI(t, nil)

	resp := c.do(http.MethodGet, "/healthz", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	resp = c.do(http.MethodGet, "/readyz", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d", resp.StatusCode)
	}
}

func TestMembershipsRequireToken(t *testing.T) {
	c := newTestAPI(t, nil)

	resp := c.do(http.MethodGet, "/v1/memberships", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	resp = c.do(http.MethodGet, "/v1/memberships", nil, "not-a-jwt")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want 401", resp.StatusCode)
	}
}

func TestMembershipsListWithViewerToken(t *testing.T) {
	c := newTestAPI(t, nil)
	token := c.obtainToken("ops-1", []string{"viewer"})

	resp := c.do(http.MethodGet, "/v1/memberships", nil, token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var payload listMembershipsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Items) != 1 || payload.Items[0].UserID != "user-1" {
		t.Fatalf("items = %+v, want the seeded membership", payload.Items)
	}
}

func TestRevokeRequiresAdmin(t *testing.T) {
	revoker := &recordingRevoker{}
	c := newTestAPI(t, revoker)

	viewer := c.obtainToken("ops-1", []string{"viewer"})
	resp := c.do(http.MethodPost, "/v1/memberships/revoke",
		map[string]string{"user_id": "user-1", "role_id": "role-vip"}, viewer)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer status = %d, want 403", resp.StatusCode)
	}
	if len(revoker.requests) != 0 {
		t.Fatal("viewer reached the revoker")
	}

	admin := c.obtainToken("ops-2", []string{"admin"})
	resp = c.do(http.MethodPost, "/v1/memberships/revoke",
		map[string]string{"user_id": "user-1", "role_id": "role-vip"}, admin)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", resp.StatusCode)
	}
	if len(revoker.requests) != 1 || revoker.requests[0].TargetUserID != "user-1" {
		t.Fatalf("revoker requests = %+v", revoker.requests)
	}
}

func TestRevokeMapsControllerErrors(t *testing.T) {
	revoker := &recordingRevoker{err: membership.ErrRoleNotHeld}
	c := newTestAPI(t, revoker)
	admin := c.obtainToken("ops-1", []string{"admin"})

	resp := c.do(http.MethodPost, "/v1/memberships/revoke",
		map[string]string{"user_id": "user-1", "role_id": "role-x"}, admin)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestTicketsList(t *testing.T) {
	c := newTestAPI(t, nil)
	token := c.obtainToken("ops-1", []string{"viewer"})

	resp := c.do(http.MethodGet, "/v1/tickets", nil, token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var payload listTicketsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Items) != 1 {
		t.Fatalf("items = %+v, want one ticket", payload.Items)
	}
	item := payload.Items[0]
	if item.ChannelID != "chan-1" || item.UserID != "user-1" || item.ClaimerID != "staff-1" {
		t.Fatalf("item = %+v", item)
	}
}

func TestRootIs404(t *testing.T) {
	c := newTestAPI(t, nil)
	resp := c.do(http.MethodGet, "/", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	// Unknown paths are behind authentication.
	resp = c.do(http.MethodGet, "/nope", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}
