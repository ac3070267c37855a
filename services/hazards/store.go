// Package hazards persists road hazard reports and emergency events and
// serves the active set consulted by nearby-hazard discovery.
package hazards

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"packride/services/packs"
)

// DefaultVisibilityMiles applies when a report does not set its own radius.
const DefaultVisibilityMiles = 5.0

var ErrNotFound = errors.New("hazard not found")

type hazardModel struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind                  string
	Description           string
	Latitude              float64
	Longitude             float64
	VisibilityRadiusMiles float64
	ReportedBy            *uuid.UUID
	ExpiresAt             *time.Time
	ResolvedAt            *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (hazardModel) TableName() string { return "hazard_reports" }

type emergencyModel struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID                uuid.UUID
	Kind                  string
	Latitude              float64
	Longitude             float64
	VisibilityRadiusMiles float64
	ResolvedAt            *time.Time
	CreatedAt             time.Time
}

func (emergencyModel) TableName() string { return "emergency_events" }

// Store reads and writes hazard state through the shared relational backend.
type Store struct {
	orm *gorm.DB
	log zerolog.Logger
	now func() time.Time
}

func New(orm *gorm.DB, log zerolog.Logger) *Store {
	return &Store{orm: orm, log: log, now: time.Now}
}

// ReportInput describes a new hazard.
type ReportInput struct {
	Kind                  string
	Description           string
	Latitude              float64
	Longitude             float64
	VisibilityRadiusMiles float64
	ReportedBy            uuid.UUID
	ExpiresAt             *time.Time
}

// Report records a hazard and returns its projection.
func (s *Store) Report(ctx context.Context, in ReportInput) (packs.Hazard, error) {
	if in.Kind == "" {
		return packs.Hazard{}, errors.New("hazard kind is required")
	}
	if in.VisibilityRadiusMiles <= 0 {
		in.VisibilityRadiusMiles = DefaultVisibilityMiles
	}

	model := hazardModel{
		ID:                    uuid.New(),
		Kind:                  in.Kind,
		Description:           in.Description,
		Latitude:              in.Latitude,
		Longitude:             in.Longitude,
		VisibilityRadiusMiles: in.VisibilityRadiusMiles,
		ExpiresAt:             in.ExpiresAt,
		CreatedAt:             s.now().UTC(),
	}
	if in.ReportedBy != uuid.Nil {
		reporter := in.ReportedBy
		model.ReportedBy = &reporter
	}

	if err := s.orm.WithContext(ctx).Create(&model).Error; err != nil {
		return packs.Hazard{}, fmt.Errorf("create hazard: %w", err)
	}
	return model.toAPI(), nil
}

// Resolve closes a hazard so it stops appearing in discovery.
func (s *Store) Resolve(ctx context.Context, id uuid.UUID) error {
	res := s.orm.WithContext(ctx).Model(&hazardModel{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Update("resolved_at", s.now().UTC())
	if res.Error != nil {
		return fmt.Errorf("resolve hazard: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("hazard %s: %w", id, ErrNotFound)
	}
	return nil
}

// Active returns every unresolved, unexpired hazard plus open emergency
// events, projected into the discovery shape. Satisfies packs.HazardSource.
func (s *Store) Active(ctx context.Context) ([]packs.Hazard, error) {
	now := s.now().UTC()

	var reports []hazardModel
	if err := s.orm.WithContext(ctx).
		Where("resolved_at IS NULL AND (expires_at IS NULL OR expires_at > ?)", now).
		Order("created_at DESC").
		Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("load hazards: %w", err)
	}

	var emergencies []emergencyModel
	if err := s.orm.WithContext(ctx).
		Where("resolved_at IS NULL").
		Order("created_at DESC").
		Find(&emergencies).Error; err != nil {
		return nil, fmt.Errorf("load emergencies: %w", err)
	}

	out := make([]packs.Hazard, 0, len(reports)+len(emergencies))
	for _, m := range reports {
		out = append(out, m.toAPI())
	}
	for _, m := range emergencies {
		out = append(out, m.toAPI())
	}
	return out, nil
}

// ReportEmergency records a rider-raised emergency. Emergencies surface in
// the same discovery feed as hazards but carry the raising rider.
func (s *Store) ReportEmergency(ctx context.Context, userID uuid.UUID, kind string, lat, lng, visibilityMiles float64) (packs.Hazard, error) {
	if userID == uuid.Nil {
		return packs.Hazard{}, errors.New("emergency needs a rider")
	}
	if kind == "" {
		kind = "emergency"
	}
	if visibilityMiles <= 0 {
		visibilityMiles = DefaultVisibilityMiles
	}

	model := emergencyModel{
		ID:                    uuid.New(),
		UserID:                userID,
		Kind:                  kind,
		Latitude:              lat,
		Longitude:             lng,
		VisibilityRadiusMiles: visibilityMiles,
		CreatedAt:             s.now().UTC(),
	}
	if err := s.orm.WithContext(ctx).Create(&model).Error; err != nil {
		return packs.Hazard{}, fmt.Errorf("create emergency: %w", err)
	}
	return model.toAPI(), nil
}

func (m hazardModel) toAPI() packs.Hazard {
	return packs.Hazard{
		ID:                    m.ID,
		Kind:                  m.Kind,
		Description:           m.Description,
		Latitude:              m.Latitude,
		Longitude:             m.Longitude,
		VisibilityRadiusMiles: m.VisibilityRadiusMiles,
		ReportedAt:            m.CreatedAt,
	}
}

func (m emergencyModel) toAPI() packs.Hazard {
	return packs.Hazard{
		ID:                    m.ID,
		Kind:                  m.Kind,
		Description:           "rider emergency",
		Latitude:              m.Latitude,
		Longitude:             m.Longitude,
		VisibilityRadiusMiles: m.VisibilityRadiusMiles,
		ReportedAt:            m.CreatedAt,
	}
}

type seedFile struct {
	Hazards []struct {
		Kind                  string  `yaml:"kind"`
		Description           string  `yaml:"description"`
		Latitude              float64 `yaml:"latitude"`
		Longitude             float64 `yaml:"longitude"`
		VisibilityRadiusMiles float64 `yaml:"visibility_radius_miles"`
	} `yaml:"hazards"`
}

// SeedFile loads hazards from a YAML file, used by the seed command for
// demo environments.
func (s *Store) SeedFile(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	for i, h := range file.Hazards {
		_, err := s.Report(ctx, ReportInput{
			Kind:                  h.Kind,
			Description:           h.Description,
			Latitude:              h.Latitude,
			Longitude:             h.Longitude,
			VisibilityRadiusMiles: h.VisibilityRadiusMiles,
		})
		if err != nil {
			return i, fmt.Errorf("seed hazard %d: %w", i, err)
		}
	}
	s.log.Info().Int("hazards", len(file.Hazards)).Str("path", path).Msg("seeded hazards")
	return len(file.Hazards), nil
}
