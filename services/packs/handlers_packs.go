package packs

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type createPackRequest struct {
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	MaxMembers   int          `json:"max_members"`
	Visibility   string       `json:"visibility"`
	MeetingPoint *Coordinate  `json:"meeting_point"`
	PlannedRoute []Coordinate `json:"planned_route"`
}

func (a *API) handleCreatePack(w http.ResponseWriter, r *http.Request) {
	var req createPackRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	pack, err := a.lifecycle.Create(r.Context(), CreateInput{
		LeaderUserID: riderID(r),
		Name:         req.Name,
		Description:  req.Description,
		MaxMembers:   req.MaxMembers,
		Visibility:   req.Visibility,
		MeetingPoint: req.MeetingPoint,
		PlannedRoute: req.PlannedRoute,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, pack)
}

func (a *API) handleListPacks(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: r.URL.Query().Get("status")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		filter.Offset, _ = strconv.Atoi(raw)
	}

	packs, err := a.lifecycle.List(r.Context(), filter)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"packs": packs})
}

type packDetailsResponse struct {
	Pack    Pack         `json:"pack"`
	Members []MemberView `json:"members"`
}

func (a *API) handleGetPack(w http.ResponseWriter, r *http.Request) {
	packID, err := parseID(chi.URLParam(r, "packID"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	pack, members, err := a.lifecycle.GetDetails(r.Context(), packID, riderID(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, packDetailsResponse{Pack: pack, Members: members})
}

type updateRouteRequest struct {
	PlannedRoute []Coordinate `json:"planned_route"`
}

func (a *API) handleUpdateRoute(w http.ResponseWriter, r *http.Request) {
	packID, err := parseID(chi.URLParam(r, "packID"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	var req updateRouteRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	if err := a.lifecycle.UpdateRoute(r.Context(), packID, riderID(r), req.PlannedRoute); err != nil {
		a.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (a *API) handleStartPack(w http.ResponseWriter, r *http.Request) {
	packID, err := parseID(chi.URLParam(r, "packID"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	pack, err := a.lifecycle.Start(r.Context(), packID, riderID(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pack)
}

func (a *API) handleEndPack(w http.ResponseWriter, r *http.Request) {
	packID, err := parseID(chi.URLParam(r, "packID"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	pack, err := a.lifecycle.End(r.Context(), packID, riderID(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pack)
}
