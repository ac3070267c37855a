package packs

import (
	"time"

	"github.com/google/uuid"
)

// Pack statuses. "active" is accepted as a synonym for a joinable pack that
// has not started riding yet; new packs are created as "planned".
const (
	StatusPlanned   = "planned"
	StatusActive    = "active"
	StatusRiding    = "riding"
	StatusFinished  = "finished"
	StatusCancelled = "cancelled"
)

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

const (
	RoleLeader   = "leader"
	RoleCoLeader = "co_leader"
	RoleMember   = "member"
)

const (
	MemberStatusActive  = "active"
	MemberStatusLeft    = "left"
	MemberStatusRemoved = "removed"
)

// Coordinate is a single point on a planned route or meeting spot.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Pack is a bounded group-ride session.
type Pack struct {
	ID                 uuid.UUID    `json:"id"`
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	LeaderUserID       uuid.UUID    `json:"leader_user_id"`
	MaxMembers         int          `json:"max_members"`
	CurrentMemberCount int          `json:"current_member_count"`
	Visibility         string       `json:"visibility"`
	InviteCode         string       `json:"invite_code,omitempty"`
	Status             string       `json:"status"`
	PlannedRoute       []Coordinate `json:"planned_route,omitempty"`
	MeetingPoint       *Coordinate  `json:"meeting_point,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	StartedAt          *time.Time   `json:"started_at,omitempty"`
	EndedAt            *time.Time   `json:"ended_at,omitempty"`
}

// PackSummary is the listing projection. It never carries an invite code.
type PackSummary struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Visibility         string    `json:"visibility"`
	Status             string    `json:"status"`
	MaxMembers         int       `json:"max_members"`
	CurrentMemberCount int       `json:"current_member_count"`
	CreatedAt          time.Time `json:"created_at"`
}

// Membership relates a rider to a pack.
type Membership struct {
	ID       uuid.UUID  `json:"id"`
	PackID   uuid.UUID  `json:"pack_id"`
	UserID   uuid.UUID  `json:"user_id"`
	Role     string     `json:"role"`
	Status   string     `json:"status"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

// LocationShare is an ephemeral, TTL-bound position report. A nil PackID
// means the share is visible in global discovery rather than to one pack.
type LocationShare struct {
	UserID    uuid.UUID  `json:"user_id"`
	PackID    *uuid.UUID `json:"pack_id,omitempty"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Heading   *float64   `json:"heading,omitempty"`
	Speed     *float64   `json:"speed,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Coordinates lets a share be fed straight into proximity matching.
func (s LocationShare) Coordinates() (float64, float64) {
	return s.Latitude, s.Longitude
}

// MemberView joins an active membership with the rider's latest live
// location share, if any.
type MemberView struct {
	UserID   uuid.UUID      `json:"user_id"`
	Username string         `json:"username"`
	Role     string         `json:"role"`
	JoinedAt time.Time      `json:"joined_at"`
	IsOnline bool           `json:"is_online"`
	Location *LocationShare `json:"location,omitempty"`
}

// Rider is the identity-service projection this subsystem needs.
type Rider struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
}

// InviteNotification is advisory: it tells the target how to join, it does
// not create a membership.
type InviteNotification struct {
	PackID         uuid.UUID `json:"pack_id"`
	PackName       string    `json:"pack_name"`
	TargetUserID   uuid.UUID `json:"target_user_id"`
	TargetUsername string    `json:"target_username"`
	InvitedBy      uuid.UUID `json:"invited_by"`
	InviteCode     string    `json:"invite_code,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Hazard is a geo-located report from the hazard/emergency collaborator
// store. VisibilityRadiusMiles is configured per hazard; a rider only sees
// the hazard when inside that radius as well as their own query radius.
type Hazard struct {
	ID                    uuid.UUID `json:"id"`
	Kind                  string    `json:"kind"`
	Description           string    `json:"description"`
	Latitude              float64   `json:"latitude"`
	Longitude             float64   `json:"longitude"`
	VisibilityRadiusMiles float64   `json:"visibility_radius_miles"`
	ReportedAt            time.Time `json:"reported_at"`
}

// Coordinates implements geo matching for hazards.
func (h Hazard) Coordinates() (float64, float64) {
	return h.Latitude, h.Longitude
}

func validStatus(s string) bool {
	switch s {
	case StatusPlanned, StatusActive, StatusRiding, StatusFinished, StatusCancelled:
		return true
	}
	return false
}

func validRole(r string) bool {
	switch r {
	case RoleLeader, RoleCoLeader, RoleMember:
		return true
	}
	return false
}

func terminalStatus(s string) bool {
	return s == StatusFinished || s == StatusCancelled
}

func joinableStatus(s string) bool {
	return s == StatusPlanned || s == StatusActive || s == StatusRiding
}
