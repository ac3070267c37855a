package packs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Column types live in the migration; the model stays dialect-neutral so
// tests can run it against an in-memory database.
type packModel struct {
	ID                 uuid.UUID `gorm:"primaryKey"`
	Name               string    `gorm:"not null"`
	Description        string
	LeaderUserID       uuid.UUID `gorm:"not null;index"`
	MaxMembers         int       `gorm:"not null"`
	CurrentMemberCount int       `gorm:"not null;default:0"`
	Visibility         string    `gorm:"not null"`
	InviteCode         *string   `gorm:"uniqueIndex"`
	Status             string    `gorm:"not null;index"`
	PlannedRoute       datatypes.JSON
	MeetingLat         *float64
	MeetingLng         *float64
	CreatedAt          time.Time `gorm:"not null"`
	StartedAt          *time.Time
	EndedAt            *time.Time
}

func (packModel) TableName() string { return "packs" }

// toAPI converts the row to its wire form. The invite code only crosses the
// boundary when the caller has a leading role on the pack.
func (p packModel) toAPI(withInviteCode bool) Pack {
	out := Pack{
		ID:                 p.ID,
		Name:               p.Name,
		Description:        p.Description,
		LeaderUserID:       p.LeaderUserID,
		MaxMembers:         p.MaxMembers,
		CurrentMemberCount: p.CurrentMemberCount,
		Visibility:         p.Visibility,
		Status:             p.Status,
		CreatedAt:          p.CreatedAt,
		StartedAt:          p.StartedAt,
		EndedAt:            p.EndedAt,
	}
	if withInviteCode && p.InviteCode != nil {
		out.InviteCode = *p.InviteCode
	}
	if p.MeetingLat != nil && p.MeetingLng != nil {
		out.MeetingPoint = &Coordinate{Lat: *p.MeetingLat, Lng: *p.MeetingLng}
	}
	out.PlannedRoute = routeFromJSON(p.PlannedRoute)
	return out
}

func (p packModel) toSummary() PackSummary {
	return PackSummary{
		ID:                 p.ID,
		Name:               p.Name,
		Description:        p.Description,
		Visibility:         p.Visibility,
		Status:             p.Status,
		MaxMembers:         p.MaxMembers,
		CurrentMemberCount: p.CurrentMemberCount,
		CreatedAt:          p.CreatedAt,
	}
}

func routeFromJSON(raw datatypes.JSON) []Coordinate {
	if len(raw) == 0 {
		return nil
	}
	var route []Coordinate
	if err := json.Unmarshal(raw, &route); err != nil {
		return nil
	}
	return route
}

func routeToJSON(route []Coordinate) (datatypes.JSON, error) {
	if len(route) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(route)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}
