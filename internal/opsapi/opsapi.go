// Package opsapi is the operator-facing HTTP surface: health, metrics,
// activity stream, and read/revoke access to the bot's state. The chat
// platform never talks to this API.
package opsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"deskbot.org/internal/kv"
	"deskbot.org/internal/membership"
	"deskbot.org/internal/obs"
	"deskbot.org/internal/stream"
	"deskbot.org/internal/ticket"
)

// ReadyProbe checks the KV store liveness when the store supports it.
type ReadyProbe struct {
	Store kv.Store
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	p, ok := rp.Store.(kv.Pinger)
	if !ok || rp.Store == nil {
		return nil
	}
	return p.Ping(ctx)
}

// Revoker is the slice of the membership controller the API needs.
type Revoker interface {
	Revoke(ctx context.Context, req membership.RevokeRequest) error
}

// Options wires the API's collaborators; nil fields disable the
// corresponding endpoints.
type Options struct {
	Probe       ReadyProbe
	Version     string
	Stream      *stream.Stream
	Memberships *membership.Registry
	Revoker     Revoker
	Tickets     *ticket.Registry
}

// API is the ops HTTP layer.
type API struct {
	mux         *http.ServeMux
	probe       ReadyProbe
	version     string
	stream      *stream.Stream
	memberships *membership.Registry
	revoker     Revoker
	tickets     *ticket.Registry
}

func New(opts Options) *API {
	a := &API{
		mux:         http.NewServeMux(),
		probe:       opts.Probe,
		version:     opts.Version,
		stream:      opts.Stream,
		memberships: opts.Memberships,
		revoker:     opts.Revoker,
		tickets:     opts.Tickets,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// operator token
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	// bot state
	a.mux.HandleFunc("/v1/memberships", a.handleMemberships)
	a.mux.HandleFunc("/v1/memberships/revoke", a.handleMembershipRevoke)
	a.mux.HandleFunc("/v1/tickets", a.handleTickets)

	// live activity (SSE)
	a.mux.HandleFunc("/v1/activity", a.Activity)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 20, 10)
	h = SecurityHeaders(h)
	return Logging(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "deskbot",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "deskbot",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
