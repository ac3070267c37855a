package packs

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"packride/pkg/db"
)

// Routes builds the HTTP surface for the pack coordination service.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", riderHeader},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))
	r.Use(httprate.Limit(300, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", a.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/packs", a.handleListPacks)
		r.Get("/stats", a.handleStats)

		r.Group(func(r chi.Router) {
			r.Use(a.requireRider)

			r.Post("/packs", a.handleCreatePack)
			r.Get("/packs/{packID}", a.handleGetPack)
			r.Put("/packs/{packID}/route", a.handleUpdateRoute)
			r.Post("/packs/{packID}/start", a.handleStartPack)
			r.Post("/packs/{packID}/end", a.handleEndPack)

			r.Post("/packs/{packID}/join", a.handleJoinPack)
			r.Post("/packs/{packID}/leave", a.handleLeavePack)
			r.Post("/packs/{packID}/invite", a.handleInvite)
			r.Put("/packs/{packID}/members/{userID}/role", a.handleSetRole)

			r.Post("/locations/share", a.handleShareLocation)
			r.Get("/locations/share", a.handleOwnLocation)
			r.Delete("/locations/share", a.handleStopSharing)
			r.Get("/packs/{packID}/locations", a.handlePackLocations)

			r.Get("/nearby/riders", a.handleNearbyRiders)
			r.Get("/nearby/hazards", a.handleNearbyHazards)
		})
	})

	return r
}

// requireRider resolves the rider identity header into the request context.
func (a *API) requireRider(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(riderHeader)
		if raw == "" {
			respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing " + riderHeader + " header"})
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "malformed " + riderHeader + " header"})
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyRiderID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.store.DB == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no database"})
		return
	}
	if err := db.Ping(r.Context(), a.store.DB); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "database unreachable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
