package packs

import (
	"time"

	"github.com/google/uuid"
)

type membershipModel struct {
	ID       uuid.UUID `gorm:"primaryKey"`
	PackID   uuid.UUID `gorm:"not null;index:idx_memberships_pack_user"`
	UserID   uuid.UUID `gorm:"not null;index:idx_memberships_pack_user"`
	Role     string    `gorm:"not null"`
	Status   string    `gorm:"not null;index"`
	JoinedAt time.Time `gorm:"not null"`
	LeftAt   *time.Time
}

func (membershipModel) TableName() string { return "pack_memberships" }

func (m membershipModel) toAPI() Membership {
	return Membership{
		ID:       m.ID,
		PackID:   m.PackID,
		UserID:   m.UserID,
		Role:     m.Role,
		Status:   m.Status,
		JoinedAt: m.JoinedAt,
		LeftAt:   m.LeftAt,
	}
}

func roleRank(role string) int {
	switch role {
	case RoleLeader:
		return 2
	case RoleCoLeader:
		return 1
	default:
		return 0
	}
}

// nextLeader picks the succession candidate: highest role tier first, then
// longest tenure, then user ID so ties resolve the same way on every node.
func nextLeader(members []membershipModel) membershipModel {
	best := members[0]
	for _, m := range members[1:] {
		if betterSuccessor(m, best) {
			best = m
		}
	}
	return best
}

func betterSuccessor(a, b membershipModel) bool {
	if roleRank(a.Role) != roleRank(b.Role) {
		return roleRank(a.Role) > roleRank(b.Role)
	}
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.UserID.String() < b.UserID.String()
}
