package packs

import (
	"fmt"
	"net/http"

	"packride/pkg/db"
)

type statsRow struct {
	TotalPacks    int `db:"total_packs"`
	RidingPacks   int `db:"riding_packs"`
	ActiveMembers int `db:"active_members"`
	OpenHazards   int `db:"open_hazards"`
}

type statsResponse struct {
	TotalPacks    int `json:"total_packs"`
	RidingPacks   int `json:"riding_packs"`
	ActiveMembers int `json:"active_members"`
	OpenHazards   int `json:"open_hazards"`
	LiveShares    int `json:"live_shares"`
}

const statsQuery = `
SELECT
  (SELECT COUNT(*) FROM packs)                                              AS total_packs,
  (SELECT COUNT(*) FROM packs WHERE status = 'riding')                      AS riding_packs,
  (SELECT COUNT(*) FROM pack_memberships WHERE status = 'active')           AS active_members,
  (SELECT COUNT(*) FROM hazard_reports WHERE resolved_at IS NULL)           AS open_hazards`

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	if a.store.DB == nil {
		a.respondError(w, r, fmt.Errorf("stats need the raw database pool: %w", ErrUnavailable))
		return
	}

	var row statsRow
	if err := db.Get(r.Context(), a.store.DB, &row, statsQuery); err != nil {
		a.respondError(w, r, storeErr("query stats", err))
		return
	}

	respondJSON(w, http.StatusOK, statsResponse{
		TotalPacks:    row.TotalPacks,
		RidingPacks:   row.RidingPacks,
		ActiveMembers: row.ActiveMembers,
		OpenHazards:   row.OpenHazards,
		LiveShares:    a.shares.LiveCount(),
	})
}
