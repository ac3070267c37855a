package packs

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type shareLocationRequest struct {
	PackID    *uuid.UUID `json:"pack_id"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Heading   *float64   `json:"heading"`
	Speed     *float64   `json:"speed"`
}

func (a *API) handleShareLocation(w http.ResponseWriter, r *http.Request) {
	var req shareLocationRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	scope := uuid.Nil
	if req.PackID != nil {
		scope = *req.PackID
		// Only active members may publish into a pack's scope.
		if _, err := a.members.activeMembership(r.Context(), scope, riderID(r)); err != nil {
			a.respondError(w, r, err)
			return
		}
	}

	share, err := a.shares.Upsert(r.Context(), riderID(r), scope, req.Latitude, req.Longitude, req.Heading, req.Speed)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, share)
}

func (a *API) handleOwnLocation(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromQuery(r)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	share, ok := a.shares.Get(riderID(r), scope)
	if !ok {
		a.respondError(w, r, fmt.Errorf("no live location share: %w", ErrNotFound))
		return
	}
	respondJSON(w, http.StatusOK, share)
}

func (a *API) handleStopSharing(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromQuery(r)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	a.shares.Remove(riderID(r), scope)
	respondJSON(w, http.StatusNoContent, nil)
}

func scopeFromQuery(r *http.Request) (uuid.UUID, error) {
	raw := r.URL.Query().Get("pack_id")
	if raw == "" {
		return uuid.Nil, nil
	}
	return parseID(raw)
}

func (a *API) handlePackLocations(w http.ResponseWriter, r *http.Request) {
	packID, err := parseID(chi.URLParam(r, "packID"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	// Pack-scoped shares are for members only.
	if _, err := a.members.activeMembership(r.Context(), packID, riderID(r)); err != nil {
		a.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"locations": a.shares.ListLive(packID)})
}
