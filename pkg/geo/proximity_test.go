package geo

import "testing"

type testRider struct {
	ID       string
	Lat, Lng float64
}

func (r testRider) Coordinates() (float64, float64) { return r.Lat, r.Lng }

func TestNearby(t *testing.T) {
	center := Point{Lat: 37.7749, Lng: -122.4194}
	candidates := []testRider{
		{ID: "far", Lat: 34.0522, Lng: -118.2437},     // ~559 km
		{ID: "close", Lat: 37.7849, Lng: -122.4094},   // ~1.4 km
		{ID: "closer", Lat: 37.7759, Lng: -122.4194},  // ~0.1 km
		{ID: "midrange", Lat: 37.8716, Lng: -122.2727}, // ~16 km
	}

	matches := Nearby(center, 20, candidates)
	if len(matches) != 3 {
		t.Fatalf("Nearby() returned %d matches, want 3", len(matches))
	}

	wantOrder := []string{"closer", "close", "midrange"}
	for i, want := range wantOrder {
		if matches[i].Item.ID != want {
			t.Fatalf("match[%d] = %q, want %q", i, matches[i].Item.ID, want)
		}
	}

	for i := 1; i < len(matches); i++ {
		if matches[i].DistanceKm < matches[i-1].DistanceKm {
			t.Fatalf("matches not sorted ascending: %v", matches)
		}
	}
}

func TestNearbyClampsOversizedRadius(t *testing.T) {
	center := Point{Lat: 37.7749, Lng: -122.4194}
	candidates := []testRider{
		{ID: "la", Lat: 34.0522, Lng: -118.2437}, // ~559 km, beyond the cap
		{ID: "sf", Lat: 37.7849, Lng: -122.4094},
	}

	// A 1000 km request is clamped to MaxRadiusKm, not rejected.
	matches := Nearby(center, 1000, candidates)
	if len(matches) != 1 || matches[0].Item.ID != "sf" {
		t.Fatalf("Nearby() with oversized radius = %v, want only sf", matches)
	}
}

func TestNearbyEmpty(t *testing.T) {
	matches := Nearby(Point{}, 10, []testRider(nil))
	if len(matches) != 0 {
		t.Fatalf("Nearby() on empty input = %v", matches)
	}
}

func TestNearbyFuncAppliesExtraFilter(t *testing.T) {
	center := Point{Lat: 37.7749, Lng: -122.4194}
	candidates := []testRider{
		{ID: "wide", Lat: 37.7849, Lng: -122.4094},   // ~1.4 km away
		{ID: "narrow", Lat: 37.7759, Lng: -122.4194}, // ~0.1 km away
	}

	// Simulates a hazard visibility radius: "wide" is visible from 10 km,
	// "narrow" only from 0.05 km, so "narrow" drops even though it is closer.
	visibility := map[string]float64{"wide": 10, "narrow": 0.05}

	matches := NearbyFunc(center, 20, candidates, func(r testRider, d float64) bool {
		return d <= visibility[r.ID]
	})
	if len(matches) != 1 || matches[0].Item.ID != "wide" {
		t.Fatalf("NearbyFunc() = %v, want only wide", matches)
	}
}
