package packs

import (
	"fmt"
	"net/http"
	"strconv"

	"packride/pkg/geo"
)

const kmPerMile = 1.609344

// DefaultNearbyRadiusKm applies when a discovery query omits the radius.
const DefaultNearbyRadiusKm = 10.0

func nearbyQuery(r *http.Request) (geo.Point, float64, error) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		return geo.Point{}, 0, fmt.Errorf("lat and lng are required: %w", ErrInvalidArgument)
	}
	center := geo.Point{Lat: lat, Lng: lng}
	if !center.Valid() {
		return geo.Point{}, 0, fmt.Errorf("lat/lng out of range: %w", ErrInvalidArgument)
	}

	radius := DefaultNearbyRadiusKm
	if raw := q.Get("radius_km"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			return geo.Point{}, 0, fmt.Errorf("radius_km %q: %w", raw, ErrInvalidArgument)
		}
		radius = parsed
	}
	return center, radius, nil
}

func (a *API) handleNearbyRiders(w http.ResponseWriter, r *http.Request) {
	center, radius, err := nearbyQuery(r)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	self := riderID(r)
	candidates := a.shares.ListLiveGlobal()
	kept := candidates[:0]
	for _, share := range candidates {
		if share.UserID == self {
			continue
		}
		kept = append(kept, share)
	}

	matches := geo.Nearby(center, radius, kept)
	respondJSON(w, http.StatusOK, map[string]any{"riders": matches})
}

func (a *API) handleNearbyHazards(w http.ResponseWriter, r *http.Request) {
	if a.store.Hazards == nil {
		a.respondError(w, r, fmt.Errorf("hazard store not configured: %w", ErrUnavailable))
		return
	}

	center, radius, err := nearbyQuery(r)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	active, err := a.store.Hazards.Active(r.Context())
	if err != nil {
		a.respondError(w, r, storeErr("load hazards", err))
		return
	}

	// A hazard is visible only inside its own configured radius, on top of
	// the rider's query radius.
	matches := geo.NearbyFunc(center, radius, active, func(h Hazard, distanceKm float64) bool {
		return distanceKm <= h.VisibilityRadiusMiles*kmPerMile
	})
	respondJSON(w, http.StatusOK, map[string]any{"hazards": matches})
}
