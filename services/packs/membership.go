package packs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"packride/pkg/invite"
)

// Members manages join/leave/role transitions. Every mutation runs under the
// pack's keyed lock plus a transaction, so capacity checks, the cached member
// count, and leader succession are a single atomic unit per pack. Two
// concurrent joins on a pack one seat from capacity resolve to exactly one
// success and one ErrFull.
type Members struct {
	orm       *gorm.DB
	locks     *packLocks
	shares    *ShareStore
	directory UserDirectory
	emitter   eventEmitter
	now       func() time.Time
}

// NewMembers wires the membership manager. The lock arena is shared with the
// lifecycle service so status transitions and membership writes on one pack
// never interleave. The share store is consulted on leave so a departed
// rider's pack-scoped location stops being visible to the pack immediately.
func NewMembers(orm *gorm.DB, locks *packLocks, shares *ShareStore, directory UserDirectory, pub EventPublisher, log zerolog.Logger) *Members {
	return &Members{
		orm:       orm,
		locks:     locks,
		shares:    shares,
		directory: directory,
		emitter:   eventEmitter{pub: pub, log: log},
		now:       time.Now,
	}
}

// Join adds the rider as a regular member. Private packs require the exact
// invite code. The capacity check and the counter increment share one
// transaction under the pack lock.
func (m *Members) Join(ctx context.Context, packID, userID uuid.UUID, inviteCode string) (Membership, error) {
	if packID == uuid.Nil || userID == uuid.Nil {
		return Membership{}, fmt.Errorf("pack id and user id are required: %w", ErrInvalidArgument)
	}

	unlock := m.locks.Lock(packID)
	defer unlock()

	var created membershipModel
	var memberCount int64

	err := m.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pack, err := loadPack(tx, packID)
		if err != nil {
			return err
		}
		if !joinableStatus(pack.Status) {
			return fmt.Errorf("pack %s is %s: %w", packID, pack.Status, ErrInvalidState)
		}
		if pack.Visibility == VisibilityPrivate {
			stored := ""
			if pack.InviteCode != nil {
				stored = *pack.InviteCode
			}
			if !invite.Match(stored, inviteCode) {
				return fmt.Errorf("invite code mismatch for pack %s: %w", packID, ErrForbidden)
			}
		}

		var existing int64
		if err := tx.Model(&membershipModel{}).
			Where("pack_id = ? AND user_id = ? AND status = ?", packID, userID, MemberStatusActive).
			Count(&existing).Error; err != nil {
			return storeErr("check membership", err)
		}
		if existing > 0 {
			return fmt.Errorf("user %s in pack %s: %w", userID, packID, ErrAlreadyMember)
		}

		var active int64
		if err := tx.Model(&membershipModel{}).
			Where("pack_id = ? AND status = ?", packID, MemberStatusActive).
			Count(&active).Error; err != nil {
			return storeErr("count members", err)
		}
		if active >= int64(pack.MaxMembers) {
			return fmt.Errorf("pack %s at capacity %d: %w", packID, pack.MaxMembers, ErrFull)
		}

		created = membershipModel{
			ID:       uuid.New(),
			PackID:   packID,
			UserID:   userID,
			Role:     RoleMember,
			Status:   MemberStatusActive,
			JoinedAt: m.now().UTC(),
		}
		if err := tx.Create(&created).Error; err != nil {
			return storeErr("create membership", err)
		}

		// The cached count moves in the same transaction that validated
		// capacity; it is never adjusted by a separate statement.
		memberCount = active + 1
		if err := tx.Model(&packModel{}).
			Where("id = ?", packID).
			Update("current_member_count", memberCount).Error; err != nil {
			return storeErr("update member count", err)
		}
		return nil
	})

	joinsTotal.WithLabelValues(joinResult(err)).Inc()
	if err != nil {
		return Membership{}, err
	}

	m.emitter.emit(ctx, subjectMemberJoined, map[string]any{
		"pack_id":      packID,
		"user_id":      userID,
		"role":         created.Role,
		"member_count": memberCount,
	})
	return created.toAPI(), nil
}

// Leave closes the caller's active membership. If the leader leaves, the
// longest-tenured remaining member of the highest role tier is promoted; if
// nobody remains, the pack auto-dissolves to cancelled. The returned pack
// reflects the post-leave state so dissolution is observable to the caller.
func (m *Members) Leave(ctx context.Context, packID, userID uuid.UUID) (Pack, error) {
	unlock := m.locks.Lock(packID)
	defer unlock()

	var (
		result    packModel
		promoted  *membershipModel
		dissolved bool
	)

	err := m.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pack, err := loadPack(tx, packID)
		if err != nil {
			return err
		}

		var membership membershipModel
		err = tx.Where("pack_id = ? AND user_id = ? AND status = ?", packID, userID, MemberStatusActive).
			First(&membership).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %s in pack %s: %w", userID, packID, ErrNotMember)
			}
			return storeErr("load membership", err)
		}

		now := m.now().UTC()
		if err := tx.Model(&membershipModel{}).
			Where("id = ?", membership.ID).
			Updates(map[string]any{"status": MemberStatusLeft, "left_at": now}).Error; err != nil {
			return storeErr("close membership", err)
		}

		var remaining []membershipModel
		if err := tx.Where("pack_id = ? AND status = ?", packID, MemberStatusActive).
			Find(&remaining).Error; err != nil {
			return storeErr("load remaining members", err)
		}

		packUpdates := map[string]any{"current_member_count": len(remaining)}

		if membership.Role == RoleLeader && !terminalStatus(pack.Status) {
			if len(remaining) == 0 {
				// A pack must never sit in a non-terminal state with zero
				// leaders; the last rider out turns off the lights.
				packUpdates["status"] = StatusCancelled
				packUpdates["ended_at"] = now
				dissolved = true
			} else {
				successor := nextLeader(remaining)
				if err := tx.Model(&membershipModel{}).
					Where("id = ?", successor.ID).
					Update("role", RoleLeader).Error; err != nil {
					return storeErr("promote successor", err)
				}
				packUpdates["leader_user_id"] = successor.UserID
				promoted = &successor
			}
		}

		if err := tx.Model(&packModel{}).
			Where("id = ?", packID).
			Updates(packUpdates).Error; err != nil {
			return storeErr("update pack", err)
		}

		return tx.First(&result, "id = ?", packID).Error
	})
	if err != nil {
		return Pack{}, err
	}

	// The pack-scoped share dies with the membership; global discovery is
	// the rider's own choice and stays.
	if m.shares != nil {
		m.shares.Remove(userID, packID)
	}

	leavesTotal.Inc()
	m.emitter.emit(ctx, subjectMemberLeft, map[string]any{
		"pack_id":      packID,
		"user_id":      userID,
		"member_count": result.CurrentMemberCount,
	})
	if promoted != nil {
		m.emitter.emit(ctx, subjectLeaderChanged, map[string]any{
			"pack_id":        packID,
			"leader_user_id": promoted.UserID,
			"previous":       userID,
		})
	}
	if dissolved {
		dissolutionsTotal.Inc()
		m.emitter.emit(ctx, subjectPackCancelled, map[string]any{
			"pack_id": packID,
			"reason":  "empty",
		})
	}

	return result.toAPI(false), nil
}

// Invite is advisory: it resolves the target and produces a notification for
// the transport, but the target still joins through Join.
func (m *Members) Invite(ctx context.Context, packID, actorID uuid.UUID, targetUsername string) (InviteNotification, error) {
	var pack packModel
	err := m.orm.WithContext(ctx).First(&pack, "id = ?", packID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return InviteNotification{}, fmt.Errorf("pack %s: %w", packID, ErrNotFound)
		}
		return InviteNotification{}, storeErr("load pack", err)
	}
	if terminalStatus(pack.Status) {
		return InviteNotification{}, fmt.Errorf("pack %s is %s: %w", packID, pack.Status, ErrInvalidState)
	}

	actor, err := m.activeMembership(ctx, packID, actorID)
	if err != nil {
		return InviteNotification{}, err
	}
	if actor.Role != RoleLeader && actor.Role != RoleCoLeader {
		return InviteNotification{}, fmt.Errorf("user %s cannot invite to pack %s: %w", actorID, packID, ErrForbidden)
	}

	target, err := m.directory.Resolve(ctx, targetUsername)
	if err != nil {
		return InviteNotification{}, err
	}

	var existing int64
	if err := m.orm.WithContext(ctx).Model(&membershipModel{}).
		Where("pack_id = ? AND user_id = ? AND status = ?", packID, target.ID, MemberStatusActive).
		Count(&existing).Error; err != nil {
		return InviteNotification{}, storeErr("check target membership", err)
	}
	if existing > 0 {
		return InviteNotification{}, fmt.Errorf("user %s in pack %s: %w", target.ID, packID, ErrAlreadyMember)
	}

	notification := InviteNotification{
		PackID:         packID,
		PackName:       pack.Name,
		TargetUserID:   target.ID,
		TargetUsername: target.Username,
		InvitedBy:      actorID,
		CreatedAt:      m.now().UTC(),
	}
	if pack.Visibility == VisibilityPrivate && pack.InviteCode != nil {
		notification.InviteCode = *pack.InviteCode
	}

	m.emitter.emit(ctx, subjectMemberInvited, map[string]any{
		"pack_id":        packID,
		"target_user_id": target.ID,
		"invited_by":     actorID,
	})
	return notification, nil
}

// SetRole changes a member's role. Only the leader may call it. Promoting a
// member to leader transfers leadership: the current leader steps down to
// co-leader in the same transaction. Demoting the sole leader, themselves
// included, is rejected, since it would leave the pack with zero leaders.
func (m *Members) SetRole(ctx context.Context, packID, actorID, targetID uuid.UUID, newRole string) (Membership, error) {
	if !validRole(newRole) {
		return Membership{}, fmt.Errorf("role %q: %w", newRole, ErrInvalidArgument)
	}

	unlock := m.locks.Lock(packID)
	defer unlock()

	var (
		updated      membershipModel
		leaderChange bool
	)

	err := m.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pack, err := loadPack(tx, packID)
		if err != nil {
			return err
		}
		if terminalStatus(pack.Status) {
			return fmt.Errorf("pack %s is %s: %w", packID, pack.Status, ErrInvalidState)
		}

		var actor membershipModel
		err = tx.Where("pack_id = ? AND user_id = ? AND status = ?", packID, actorID, MemberStatusActive).
			First(&actor).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %s in pack %s: %w", actorID, packID, ErrNotMember)
			}
			return storeErr("load actor membership", err)
		}
		if actor.Role != RoleLeader {
			return fmt.Errorf("user %s is not the leader of pack %s: %w", actorID, packID, ErrForbidden)
		}

		if targetID == actorID {
			if newRole == RoleLeader {
				updated = actor
				return nil
			}
			return fmt.Errorf("demoting the sole leader of pack %s: %w", packID, ErrInvalidOperation)
		}

		var target membershipModel
		err = tx.Where("pack_id = ? AND user_id = ? AND status = ?", packID, targetID, MemberStatusActive).
			First(&target).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %s in pack %s: %w", targetID, packID, ErrNotMember)
			}
			return storeErr("load target membership", err)
		}

		if newRole == RoleLeader {
			// Leadership transfer: promote the target and step the actor
			// down inside the same transaction, so there is never a moment
			// with zero or two leaders.
			if err := tx.Model(&membershipModel{}).
				Where("id = ?", actor.ID).
				Update("role", RoleCoLeader).Error; err != nil {
				return storeErr("demote leader", err)
			}
			if err := tx.Model(&packModel{}).
				Where("id = ?", packID).
				Update("leader_user_id", targetID).Error; err != nil {
				return storeErr("update pack leader", err)
			}
			leaderChange = true
		}

		if err := tx.Model(&membershipModel{}).
			Where("id = ?", target.ID).
			Update("role", newRole).Error; err != nil {
			return storeErr("update role", err)
		}

		target.Role = newRole
		updated = target
		return nil
	})
	if err != nil {
		return Membership{}, err
	}

	if leaderChange {
		m.emitter.emit(ctx, subjectLeaderChanged, map[string]any{
			"pack_id":        packID,
			"leader_user_id": targetID,
			"previous":       actorID,
		})
	}
	return updated.toAPI(), nil
}

func (m *Members) activeMembership(ctx context.Context, packID, userID uuid.UUID) (membershipModel, error) {
	var membership membershipModel
	err := m.orm.WithContext(ctx).
		Where("pack_id = ? AND user_id = ? AND status = ?", packID, userID, MemberStatusActive).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return membershipModel{}, fmt.Errorf("user %s in pack %s: %w", userID, packID, ErrNotMember)
		}
		return membershipModel{}, storeErr("load membership", err)
	}
	return membership, nil
}

func loadPack(tx *gorm.DB, packID uuid.UUID) (packModel, error) {
	var pack packModel
	if err := tx.First(&pack, "id = ?", packID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return packModel{}, fmt.Errorf("pack %s: %w", packID, ErrNotFound)
		}
		return packModel{}, storeErr("load pack", err)
	}
	return pack, nil
}
