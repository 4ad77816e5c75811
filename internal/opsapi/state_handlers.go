package opsapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"deskbot.org/internal/audit"
	"deskbot.org/internal/auth"
	"deskbot.org/internal/membership"
)

type listMembershipsResponse struct {
	Items []membership.Membership `json:"items"`
	AsOf  time.Time               `json:"as_of"`
}

type revokeRequest struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
}

type ticketView struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	ClaimerID string `json:"claimer_id,omitempty"`
}

type listTicketsResponse struct {
	Items []ticketView `json:"items"`
	AsOf  time.Time    `json:"as_of"`
}

func (a *API) handleMemberships(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if err := requirePermission(r.Context(), auth.PermMembershipsRead); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if a.memberships == nil {
		writeError(w, http.StatusServiceUnavailable, "memberships unavailable")
		return
	}

	items, err := a.memberships.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load memberships failed")
		return
	}
	if items == nil {
		items = []membership.Membership{}
	}
	writeJSON(w, http.StatusOK, listMembershipsResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) handleMembershipRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if err := requirePermission(r.Context(), auth.PermMembershipsRevoke); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if a.revoker == nil {
		writeError(w, http.StatusServiceUnavailable, "revocation unavailable")
		return
	}

	var req revokeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.RoleID) == "" {
		writeError(w, http.StatusBadRequest, "user_id and role_id are required")
		return
	}

	ctx := r.Context()
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		ctx = audit.WithActor(ctx, principal.UserID)
	}

	err := a.revoker.Revoke(ctx, membership.RevokeRequest{
		TargetUserID: req.UserID,
		RoleID:       req.RoleID,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
	case errors.Is(err, membership.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, membership.ErrRoleNotHeld):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "revocation failed")
	}
}

func (a *API) handleTickets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if err := requirePermission(r.Context(), auth.PermTicketsRead); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if a.tickets == nil {
		writeError(w, http.StatusServiceUnavailable, "tickets unavailable")
		return
	}

	active, claimed := a.tickets.Snapshot()
	items := make([]ticketView, 0, len(active))
	for userID, channelID := range active {
		items = append(items, ticketView{
			ChannelID: channelID,
			UserID:    userID,
			ClaimerID: claimed[channelID],
		})
	}
	writeJSON(w, http.StatusOK, listTicketsResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
