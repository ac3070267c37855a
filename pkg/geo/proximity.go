package geo

import "sort"

// Located is implemented by anything with a position that can be matched
// against a center point.
type Located interface {
	Coordinates() (lat, lng float64)
}

// Match pairs a candidate with its distance from the query center.
type Match[T Located] struct {
	Item       T       `json:"item"`
	DistanceKm float64 `json:"distance_km"`
}

// Nearby filters candidates to those within radiusKm of center and returns
// them sorted by ascending distance. The radius is clamped to MaxRadiusKm.
func Nearby[T Located](center Point, radiusKm float64, candidates []T) []Match[T] {
	radiusKm = ClampRadiusKm(radiusKm)

	matches := make([]Match[T], 0, len(candidates))
	for _, c := range candidates {
		lat, lng := c.Coordinates()
		d := Distance(center.Lat, center.Lng, lat, lng)
		if d > radiusKm {
			continue
		}
		matches = append(matches, Match[T]{Item: c, DistanceKm: d})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].DistanceKm < matches[j].DistanceKm
	})
	return matches
}

// NearbyFunc is Nearby with an extra per-candidate filter evaluated against
// the computed distance. Hazard matching uses it to apply the hazard's own
// visibility radius on top of the query radius.
func NearbyFunc[T Located](center Point, radiusKm float64, candidates []T, keep func(item T, distanceKm float64) bool) []Match[T] {
	matches := Nearby(center, radiusKm, candidates)
	out := matches[:0]
	for _, m := range matches {
		if keep == nil || keep(m.Item, m.DistanceKm) {
			out = append(out, m)
		}
	}
	return out
}
