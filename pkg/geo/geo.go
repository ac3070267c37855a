package geo

import "math"

const (
	earthRadiusKm = 6371.0

	// MaxRadiusKm bounds every proximity query regardless of what the
	// client asked for.
	MaxRadiusKm = 50.0
)

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within coordinate bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Distance returns the great-circle distance between two coordinates in
// kilometers using the haversine formula. The intermediate term is clamped
// to [0, 1] so antipodal and near-pole inputs never overshoot into NaN.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	a = clamp01(a)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// ClampRadiusKm caps a requested search radius at MaxRadiusKm. Oversized
// radii are clamped, never rejected.
func ClampRadiusKm(radiusKm float64) float64 {
	if radiusKm > MaxRadiusKm {
		return MaxRadiusKm
	}
	return radiusKm
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
