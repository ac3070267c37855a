package packs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey int

const ctxKeyRiderID ctxKey = iota

// riderHeader carries the authenticated rider identity. Authentication
// itself happens upstream; this service trusts the header.
const riderHeader = "X-Rider-ID"

func riderID(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(ctxKeyRiderID).(uuid.UUID)
	return id
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", errors.Join(ErrInvalidArgument, err))
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func (a *API) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		a.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed id %q: %w", raw, ErrInvalidArgument)
	}
	return id, nil
}
