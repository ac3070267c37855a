package packs

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// HazardSource supplies the active road hazards consulted by the nearby
// hazards endpoint. Implemented by the hazards service.
type HazardSource interface {
	Active(ctx context.Context) ([]Hazard, error)
}

// Store bundles the backends the API works against. DB is the raw pool used
// for readiness checks and aggregate stats; ORM carries the relational
// workload. Bus and Hazards are optional, the endpoints that need them fail
// with a dependency error when absent.
type Store struct {
	DB      *pgxpool.Pool
	ORM     *gorm.DB
	Bus     EventPublisher
	Hazards HazardSource
}

// Config tunes the API.
type Config struct {
	ShareTTL          time.Duration
	StaleAfter        time.Duration
	DefaultMaxMembers int
	Logger            zerolog.Logger
}

// API exposes the pack coordination surface over HTTP.
type API struct {
	store  Store
	cfg    Config
	log    zerolog.Logger
	shares *ShareStore

	lifecycle *Lifecycle
	members   *Members
}

// New builds the API. The ORM is required; everything else degrades.
func New(store Store, cfg Config) (*API, error) {
	if store.ORM == nil {
		return nil, errors.New("packs: gorm handle is required")
	}
	if cfg.ShareTTL <= 0 {
		cfg.ShareTTL = DefaultShareTTL
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.DefaultMaxMembers <= 0 {
		cfg.DefaultMaxMembers = DefaultMaxMembers
	}

	locks := newPackLocks()
	directory := NewDirectory(store.ORM)
	shares := NewShareStore(cfg.ShareTTL, store.Bus, cfg.Logger)

	return &API{
		store:     store,
		cfg:       cfg,
		log:       cfg.Logger,
		shares:    shares,
		lifecycle: NewLifecycle(store.ORM, locks, shares, directory, store.Bus, cfg.Logger, cfg.StaleAfter, cfg.DefaultMaxMembers),
		members:   NewMembers(store.ORM, locks, shares, directory, store.Bus, cfg.Logger),
	}, nil
}

// Shares exposes the live location store so the daemon can run its sweeper.
func (a *API) Shares() *ShareStore { return a.shares }
