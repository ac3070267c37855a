package packs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestAPI(t *testing.T) (*API, *fixture) {
	t.Helper()

	f := newFixture(t)
	api, err := New(Store{ORM: f.orm, Bus: f.pub}, Config{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new api: %v", err)
	}
	// The fixture only seeds riders; handlers and fixture share one DB.
	return api, f
}

func doJSON(t *testing.T, handler http.Handler, method, path string, rider uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if rider != uuid.Nil {
		req.Header.Set(riderHeader, rider.String())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRoutesRequireRiderHeader(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Routes()

	rec := doJSON(t, handler, http.MethodPost, "/v1/packs", uuid.Nil, map[string]any{"name": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing header: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/packs", bytes.NewBufferString("{}"))
	req.Header.Set(riderHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("malformed header: status = %d, want 401", rec.Code)
	}
}

func TestPackHTTPFlow(t *testing.T) {
	api, f := newTestAPI(t)
	handler := api.Routes()
	leader := f.addRider(t, "ada")
	rider := f.addRider(t, "lin")

	rec := doJSON(t, handler, http.MethodPost, "/v1/packs", leader, map[string]any{
		"name":        "coast run",
		"max_members": 2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body)
	}
	var created Pack
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode pack: %v", err)
	}

	base := fmt.Sprintf("/v1/packs/%s", created.ID)

	rec = doJSON(t, handler, http.MethodPost, base+"/join", rider, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("join: status = %d, body %s", rec.Code, rec.Body)
	}

	// Capacity reached; a third rider gets a conflict.
	third := f.addRider(t, "sam")
	rec = doJSON(t, handler, http.MethodPost, base+"/join", third, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("join full: status = %d, want 409", rec.Code)
	}

	// Member cannot start the ride.
	rec = doJSON(t, handler, http.MethodPost, base+"/start", rider, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("start by member: status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, base+"/start", leader, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: status = %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, handler, http.MethodGet, base, rider, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("details: status = %d", rec.Code)
	}
	var details packDetailsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if details.Pack.Status != StatusRiding {
		t.Errorf("status = %q, want riding", details.Pack.Status)
	}
	if len(details.Members) != 2 {
		t.Errorf("members = %d, want 2", len(details.Members))
	}

	rec = doJSON(t, handler, http.MethodPost, base+"/end", leader, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("end: status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestUnknownPackIs404(t *testing.T) {
	api, f := newTestAPI(t)
	handler := api.Routes()
	rider := f.addRider(t, "ada")

	rec := doJSON(t, handler, http.MethodGet, "/v1/packs/"+uuid.NewString(), rider, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/v1/packs/not-a-uuid", rider, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id: status = %d, want 400", rec.Code)
	}
}

func TestPackScopedShareRequiresMembership(t *testing.T) {
	api, f := newTestAPI(t)
	handler := api.Routes()
	leader := f.addRider(t, "ada")
	stranger := f.addRider(t, "sam")

	rec := doJSON(t, handler, http.MethodPost, "/v1/packs", leader, map[string]any{"name": "canyon run"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d", rec.Code)
	}
	var pack Pack
	if err := json.Unmarshal(rec.Body.Bytes(), &pack); err != nil {
		t.Fatalf("decode pack: %v", err)
	}

	body := map[string]any{
		"pack_id":   pack.ID,
		"latitude":  37.77,
		"longitude": -122.42,
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/locations/share", stranger, body)
	if rec.Code != http.StatusNotFound {
		t.Errorf("stranger shares into pack: status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/locations/share", leader, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("member shares into pack: status = %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/v1/packs/%s/locations", pack.ID), leader, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pack locations: status = %d", rec.Code)
	}
	var listing struct {
		Locations []LocationShare `json:"locations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode locations: %v", err)
	}
	for _, s := range listing.Locations {
		if s.UserID == stranger {
			t.Error("non-member share leaked into the pack feed")
		}
	}
}

func TestLocationEndpoints(t *testing.T) {
	api, f := newTestAPI(t)
	handler := api.Routes()
	leader := f.addRider(t, "ada")
	other := f.addRider(t, "lin")

	rec := doJSON(t, handler, http.MethodPost, "/v1/locations/share", leader, map[string]any{
		"latitude":  37.77,
		"longitude": -122.42,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("share: status = %d, body %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, handler, http.MethodPost, "/v1/locations/share", other, map[string]any{
		"latitude":  37.80,
		"longitude": -122.41,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("share other: status = %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/locations/share", leader, map[string]any{
		"latitude":  91.0,
		"longitude": 0.0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad coords: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/v1/locations/share", leader, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("read own share: status = %d", rec.Code)
	}

	// Nearby discovery excludes the requesting rider.
	rec = doJSON(t, handler, http.MethodGet, "/v1/nearby/riders?lat=37.77&lng=-122.42&radius_km=10", leader, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("nearby: status = %d, body %s", rec.Code, rec.Body)
	}
	var nearby struct {
		Riders []struct {
			Item       LocationShare `json:"item"`
			DistanceKm float64       `json:"distance_km"`
		} `json:"riders"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &nearby); err != nil {
		t.Fatalf("decode nearby: %v", err)
	}
	if len(nearby.Riders) != 1 || nearby.Riders[0].Item.UserID != other {
		t.Errorf("nearby riders = %+v, want only %s", nearby.Riders, other)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/v1/locations/share", leader, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("stop sharing: status = %d, want 204", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/v1/locations/share", leader, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("read after stop: status = %d, want 404", rec.Code)
	}

	// Hazard discovery without a configured store degrades, not panics.
	rec = doJSON(t, handler, http.MethodGet, "/v1/nearby/hazards?lat=37.77&lng=-122.42", leader, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("hazards unconfigured: status = %d, want 503", rec.Code)
	}
}
