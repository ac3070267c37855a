package packs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type joinPackRequest struct {
	InviteCode string `json:"invite_code"`
}

func (a *API) handleJoinPack(w http.ResponseWriter, r *http.Request) {
	packID, err := parseID(chi.URLParam(r, "packID"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	var req joinPackRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			a.respondError(w, r, err)
			return
		}
	}

	membership, err := a.members.Join(r.Context(), packID, riderID(r), req.InviteCode)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, membership)
}

func (a *API) handleLeavePack(w http.ResponseWriter, r *http.Request) {
	packID, err := parseID(chi.URLParam(r, "packID"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	pack, err := a.members.Leave(r.Context(), packID, riderID(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pack)
}

type inviteRequest struct {
	Username string `json:"username"`
}

func (a *API) handleInvite(w http.ResponseWriter, r *http.Request) {
	packID, err := parseID(chi.URLParam(r, "packID"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	invite, err := a.members.Invite(r.Context(), packID, riderID(r), req.Username)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, invite)
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleSetRole(w http.ResponseWriter, r *http.Request) {
	packID, err := parseID(chi.URLParam(r, "packID"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	targetID, err := parseID(chi.URLParam(r, "userID"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	var req setRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	membership, err := a.members.SetRole(r.Context(), packID, riderID(r), targetID, req.Role)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, membership)
}
