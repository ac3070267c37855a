package packs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"packride/pkg/geo"
	"packride/pkg/invite"
)

const (
	// DefaultMaxMembers applies when a creator does not pick a capacity.
	DefaultMaxMembers = 10

	// MaxMembersLimit caps how large a single pack can be.
	MaxMembersLimit = 100

	inviteCodeAttempts = 5
)

// Lifecycle owns pack creation and the status state machine from planned
// through riding to finished or cancelled. Transitions are leader-gated;
// auto-dissolution on empty is the membership manager's side of the contract.
type Lifecycle struct {
	orm        *gorm.DB
	locks      *packLocks
	shares     *ShareStore
	directory  UserDirectory
	emitter    eventEmitter
	staleAfter time.Duration
	defaultMax int
	now        func() time.Time
}

// NewLifecycle wires the pack lifecycle service. staleAfter controls the
// isOnline presence window in member views.
func NewLifecycle(orm *gorm.DB, locks *packLocks, shares *ShareStore, directory UserDirectory, pub EventPublisher, log zerolog.Logger, staleAfter time.Duration, defaultMax int) *Lifecycle {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if defaultMax <= 0 {
		defaultMax = DefaultMaxMembers
	}
	return &Lifecycle{
		orm:        orm,
		locks:      locks,
		shares:     shares,
		directory:  directory,
		emitter:    eventEmitter{pub: pub, log: log},
		staleAfter: staleAfter,
		defaultMax: defaultMax,
		now:        time.Now,
	}
}

// CreateInput carries everything needed to open a pack.
type CreateInput struct {
	LeaderUserID uuid.UUID
	Name         string
	Description  string
	MaxMembers   int
	Visibility   string
	MeetingPoint *Coordinate
	PlannedRoute []Coordinate
}

// Create opens a pack and atomically enrolls the creator as its leader, so
// the pack is never observable without exactly one active leader. Private
// packs get an invite code at creation; the code is immutable for the pack's
// lifetime.
func (l *Lifecycle) Create(ctx context.Context, in CreateInput) (Pack, error) {
	if in.LeaderUserID == uuid.Nil {
		return Pack{}, fmt.Errorf("leader user id is required: %w", ErrInvalidArgument)
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Pack{}, fmt.Errorf("pack name is required: %w", ErrInvalidArgument)
	}
	if in.Visibility == "" {
		in.Visibility = VisibilityPublic
	}
	if in.Visibility != VisibilityPublic && in.Visibility != VisibilityPrivate {
		return Pack{}, fmt.Errorf("visibility %q: %w", in.Visibility, ErrInvalidArgument)
	}
	if in.MaxMembers == 0 {
		in.MaxMembers = l.defaultMax
	}
	if in.MaxMembers < 1 || in.MaxMembers > MaxMembersLimit {
		return Pack{}, fmt.Errorf("max members %d outside [1, %d]: %w", in.MaxMembers, MaxMembersLimit, ErrInvalidArgument)
	}
	if in.MeetingPoint != nil && !(geo.Point{Lat: in.MeetingPoint.Lat, Lng: in.MeetingPoint.Lng}).Valid() {
		return Pack{}, fmt.Errorf("meeting point out of range: %w", ErrInvalidArgument)
	}
	if err := validateRoute(in.PlannedRoute); err != nil {
		return Pack{}, err
	}

	routeJSON, err := routeToJSON(in.PlannedRoute)
	if err != nil {
		return Pack{}, fmt.Errorf("encode route: %w", errors.Join(ErrInvalidArgument, err))
	}

	var created packModel

	// The invite-code unique index backs collision handling; on the rare
	// duplicate the whole transaction is retried with a fresh code.
	for attempt := 0; ; attempt++ {
		var code *string
		if in.Visibility == VisibilityPrivate {
			generated, err := invite.Generate()
			if err != nil {
				return Pack{}, storeErr("generate invite code", err)
			}
			code = &generated
		}

		now := l.now().UTC()
		created = packModel{
			ID:                 uuid.New(),
			Name:               in.Name,
			Description:        in.Description,
			LeaderUserID:       in.LeaderUserID,
			MaxMembers:         in.MaxMembers,
			CurrentMemberCount: 1,
			Visibility:         in.Visibility,
			InviteCode:         code,
			Status:             StatusPlanned,
			PlannedRoute:       routeJSON,
			CreatedAt:          now,
		}
		if in.MeetingPoint != nil {
			lat, lng := in.MeetingPoint.Lat, in.MeetingPoint.Lng
			created.MeetingLat = &lat
			created.MeetingLng = &lng
		}

		err := l.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&created).Error; err != nil {
				return err
			}
			leader := membershipModel{
				ID:       uuid.New(),
				PackID:   created.ID,
				UserID:   in.LeaderUserID,
				Role:     RoleLeader,
				Status:   MemberStatusActive,
				JoinedAt: now,
			}
			return tx.Create(&leader).Error
		})
		if err == nil {
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) && in.Visibility == VisibilityPrivate && attempt < inviteCodeAttempts {
			continue
		}
		return Pack{}, storeErr("create pack", err)
	}

	l.emitter.emit(ctx, subjectPackCreated, map[string]any{
		"pack_id":        created.ID,
		"leader_user_id": in.LeaderUserID,
		"visibility":     created.Visibility,
	})

	// The creator leads the pack, so the code comes back to them.
	return created.toAPI(true), nil
}

// UpdateRoute replaces the planned route. Leader or co-leader only; packs
// are immutable once finished or cancelled.
func (l *Lifecycle) UpdateRoute(ctx context.Context, packID, actorID uuid.UUID, route []Coordinate) error {
	if err := validateRoute(route); err != nil {
		return err
	}
	routeJSON, err := routeToJSON(route)
	if err != nil {
		return fmt.Errorf("encode route: %w", errors.Join(ErrInvalidArgument, err))
	}

	unlock := l.locks.Lock(packID)
	defer unlock()

	return l.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pack, err := loadPack(tx, packID)
		if err != nil {
			return err
		}
		if terminalStatus(pack.Status) {
			return fmt.Errorf("pack %s is %s: %w", packID, pack.Status, ErrInvalidState)
		}
		role, err := activeRole(tx, packID, actorID)
		if err != nil {
			return err
		}
		if role != RoleLeader && role != RoleCoLeader {
			return fmt.Errorf("user %s cannot edit the route of pack %s: %w", actorID, packID, ErrForbidden)
		}
		if err := tx.Model(&packModel{}).
			Where("id = ?", packID).
			Update("planned_route", routeJSON).Error; err != nil {
			return storeErr("update route", err)
		}
		return nil
	})
}

// Start moves a joinable pack to riding and stamps startedAt. Leader only.
func (l *Lifecycle) Start(ctx context.Context, packID, actorID uuid.UUID) (Pack, error) {
	pack, err := l.transition(ctx, packID, actorID, func(current string) bool {
		return current == StatusPlanned || current == StatusActive
	}, StatusRiding, "started_at")
	if err != nil {
		return Pack{}, err
	}

	l.emitter.emit(ctx, subjectPackStarted, map[string]any{
		"pack_id":    packID,
		"started_at": pack.StartedAt,
	})
	return pack, nil
}

// End moves a riding pack to finished and stamps endedAt. Leader only.
// Ending an already-finished pack is an InvalidState error, not a no-op.
func (l *Lifecycle) End(ctx context.Context, packID, actorID uuid.UUID) (Pack, error) {
	pack, err := l.transition(ctx, packID, actorID, func(current string) bool {
		return current == StatusRiding
	}, StatusFinished, "ended_at")
	if err != nil {
		return Pack{}, err
	}

	l.emitter.emit(ctx, subjectPackEnded, map[string]any{
		"pack_id":  packID,
		"ended_at": pack.EndedAt,
	})
	return pack, nil
}

func (l *Lifecycle) transition(ctx context.Context, packID, actorID uuid.UUID, allowed func(string) bool, next string, stampColumn string) (Pack, error) {
	unlock := l.locks.Lock(packID)
	defer unlock()

	var result packModel

	err := l.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pack, err := loadPack(tx, packID)
		if err != nil {
			return err
		}
		role, err := activeRole(tx, packID, actorID)
		if err != nil {
			return err
		}
		if role != RoleLeader {
			return fmt.Errorf("user %s is not the leader of pack %s: %w", actorID, packID, ErrForbidden)
		}
		if !allowed(pack.Status) {
			return fmt.Errorf("pack %s is %s: %w", packID, pack.Status, ErrInvalidState)
		}

		updates := map[string]any{
			"status":    next,
			stampColumn: l.now().UTC(),
		}
		if err := tx.Model(&packModel{}).
			Where("id = ?", packID).
			Updates(updates).Error; err != nil {
			return storeErr("update pack status", err)
		}
		return tx.First(&result, "id = ?", packID).Error
	})
	if err != nil {
		return Pack{}, err
	}
	return result.toAPI(false), nil
}

// GetDetails returns the pack plus a view of each active member joined with
// their live pack-scoped location share and presence flag. Public packs are
// visible to anyone; private packs only to active members. The invite code
// is included only for leaders and co-leaders.
func (l *Lifecycle) GetDetails(ctx context.Context, packID, requesterID uuid.UUID) (Pack, []MemberView, error) {
	var pack packModel
	err := l.orm.WithContext(ctx).First(&pack, "id = ?", packID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Pack{}, nil, fmt.Errorf("pack %s: %w", packID, ErrNotFound)
		}
		return Pack{}, nil, storeErr("load pack", err)
	}

	requesterRole, roleErr := activeRole(l.orm.WithContext(ctx), packID, requesterID)
	isMember := roleErr == nil
	if roleErr != nil && !errors.Is(roleErr, ErrNotMember) {
		return Pack{}, nil, roleErr
	}

	if pack.Visibility == VisibilityPrivate && !isMember {
		return Pack{}, nil, fmt.Errorf("pack %s is private: %w", packID, ErrForbidden)
	}

	var members []membershipModel
	if err := l.orm.WithContext(ctx).
		Where("pack_id = ? AND status = ?", packID, MemberStatusActive).
		Find(&members).Error; err != nil {
		return Pack{}, nil, storeErr("load members", err)
	}
	sortMembers(members)

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	riders, err := l.directory.RidersByID(ctx, ids)
	if err != nil {
		return Pack{}, nil, err
	}

	now := l.now().UTC()
	views := make([]MemberView, 0, len(members))
	for _, m := range members {
		view := MemberView{
			UserID:   m.UserID,
			Username: riders[m.UserID].Username,
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		}
		if share, ok := l.shares.Get(m.UserID, packID); ok {
			scoped := share
			view.Location = &scoped
			view.IsOnline = now.Sub(share.UpdatedAt) <= l.staleAfter
		}
		views = append(views, view)
	}

	withCode := isMember && (requesterRole == RoleLeader || requesterRole == RoleCoLeader)
	return pack.toAPI(withCode), views, nil
}

// ListFilter narrows List. Status is optional; Limit defaults to 20 and is
// capped at 100.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// List returns public packs, newest first. Invite codes never appear in
// summaries.
func (l *Lifecycle) List(ctx context.Context, filter ListFilter) ([]PackSummary, error) {
	if filter.Status != "" && !validStatus(filter.Status) {
		return nil, fmt.Errorf("status %q: %w", filter.Status, ErrInvalidArgument)
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	query := l.orm.WithContext(ctx).
		Where("visibility = ?", VisibilityPublic).
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var models []packModel
	if err := query.Find(&models).Error; err != nil {
		return nil, storeErr("list packs", err)
	}

	out := make([]PackSummary, 0, len(models))
	for _, m := range models {
		out = append(out, m.toSummary())
	}
	return out, nil
}

func validateRoute(route []Coordinate) error {
	for i, c := range route {
		if !(geo.Point{Lat: c.Lat, Lng: c.Lng}).Valid() {
			return fmt.Errorf("route point %d out of range: %w", i, ErrInvalidArgument)
		}
	}
	return nil
}

func activeRole(tx *gorm.DB, packID, userID uuid.UUID) (string, error) {
	if userID == uuid.Nil {
		return "", fmt.Errorf("user %s in pack %s: %w", userID, packID, ErrNotMember)
	}
	var membership membershipModel
	err := tx.Where("pack_id = ? AND user_id = ? AND status = ?", packID, userID, MemberStatusActive).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("user %s in pack %s: %w", userID, packID, ErrNotMember)
		}
		return "", storeErr("load membership", err)
	}
	return membership.Role, nil
}

func sortMembers(members []membershipModel) {
	for i := 1; i < len(members); i++ {
		for j := i; j > 0 && betterSuccessor(members[j], members[j-1]); j-- {
			members[j], members[j-1] = members[j-1], members[j]
		}
	}
}
