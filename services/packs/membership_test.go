package packs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestJoinAndCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader := f.addRider(t, "ada")
	second := f.addRider(t, "lin")
	third := f.addRider(t, "sam")

	pack := f.createPack(t, leader, CreateInput{MaxMembers: 2})

	membership, err := f.members.Join(ctx, pack.ID, second, "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if membership.Role != RoleMember {
		t.Errorf("joiner role = %q, want member", membership.Role)
	}

	// Seat two of two is taken; the third rider bounces.
	if _, err := f.members.Join(ctx, pack.ID, third, ""); !errors.Is(err, ErrFull) {
		t.Errorf("join full pack: err = %v, want ErrFull", err)
	}

	// Rejoining while active is a conflict, not a second membership.
	if _, err := f.members.Join(ctx, pack.ID, second, ""); !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("double join: err = %v, want ErrAlreadyMember", err)
	}

	model := packFromDB(t, f.orm, pack.ID)
	if model.CurrentMemberCount != 2 {
		t.Errorf("cached count = %d, want 2", model.CurrentMemberCount)
	}
	if got := activeMemberCount(t, f.orm, pack.ID); got != 2 {
		t.Errorf("active rows = %d, want 2", got)
	}
}

func TestJoinPrivateRequiresInviteCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader := f.addRider(t, "ada")
	rider := f.addRider(t, "lin")

	pack := f.createPack(t, leader, CreateInput{Visibility: VisibilityPrivate})

	tests := []struct {
		name string
		code string
		want error
	}{
		{"empty code", "", ErrForbidden},
		{"wrong code", "000000", ErrForbidden},
		{"lowercased code", "qqqqqq", ErrForbidden},
		{"exact code", pack.InviteCode, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.members.Join(ctx, pack.ID, rider, tc.code)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("join: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader := f.addRider(t, "ada")

	const capacity = 5
	pack := f.createPack(t, leader, CreateInput{MaxMembers: capacity})

	const contenders = 12
	riders := make([]uuid.UUID, contenders)
	for i := range riders {
		riders[i] = f.addRider(t, fmt.Sprintf("rider-%02d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i, rider := range riders {
		wg.Add(1)
		go func(i int, rider uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.members.Join(ctx, pack.ID, rider, "")
		}(i, rider)
	}
	wg.Wait()

	joined, full := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			joined++
		case errors.Is(err, ErrFull):
			full++
		default:
			t.Errorf("unexpected join error: %v", err)
		}
	}

	// Leader holds one seat, so capacity-1 joins win and the rest get ErrFull.
	if joined != capacity-1 {
		t.Errorf("winners = %d, want %d", joined, capacity-1)
	}
	if full != contenders-(capacity-1) {
		t.Errorf("ErrFull = %d, want %d", full, contenders-(capacity-1))
	}

	model := packFromDB(t, f.orm, pack.ID)
	if model.CurrentMemberCount != capacity {
		t.Errorf("cached count = %d, want %d", model.CurrentMemberCount, capacity)
	}
	if got := activeMemberCount(t, f.orm, pack.ID); got != capacity {
		t.Errorf("active rows = %d, want %d", got, capacity)
	}
}

// TestTwoSeatPackWalkthrough exercises a full small-pack session: fill to
// capacity, bounce the overflow, drain, and auto-dissolve.
func TestTwoSeatPackWalkthrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.addRider(t, "a")
	b := f.addRider(t, "b")
	c := f.addRider(t, "c")

	pack := f.createPack(t, a, CreateInput{MaxMembers: 2})

	if _, err := f.members.Join(ctx, pack.ID, b, ""); err != nil {
		t.Fatalf("b joins: %v", err)
	}
	if got := packFromDB(t, f.orm, pack.ID).CurrentMemberCount; got != 2 {
		t.Errorf("count after b = %d, want 2", got)
	}

	if _, err := f.members.Join(ctx, pack.ID, c, ""); !errors.Is(err, ErrFull) {
		t.Errorf("c joins full pack: err = %v, want ErrFull", err)
	}

	afterB, err := f.members.Leave(ctx, pack.ID, b)
	if err != nil {
		t.Fatalf("b leaves: %v", err)
	}
	if afterB.CurrentMemberCount != 1 || afterB.LeaderUserID != a {
		t.Errorf("after b leaves: count=%d leader=%s, want 1/%s", afterB.CurrentMemberCount, afterB.LeaderUserID, a)
	}

	afterA, err := f.members.Leave(ctx, pack.ID, a)
	if err != nil {
		t.Fatalf("a leaves: %v", err)
	}
	if afterA.Status != StatusCancelled || afterA.CurrentMemberCount != 0 {
		t.Errorf("after a leaves: status=%q count=%d, want cancelled/0", afterA.Status, afterA.CurrentMemberCount)
	}
}

func TestLeaveAndCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader := f.addRider(t, "ada")
	rider := f.addRider(t, "lin")

	pack := f.createPack(t, leader, CreateInput{})
	if _, err := f.members.Join(ctx, pack.ID, rider, ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	got, err := f.members.Leave(ctx, pack.ID, rider)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if got.CurrentMemberCount != 1 {
		t.Errorf("count after leave = %d, want 1", got.CurrentMemberCount)
	}

	// Leaving twice surfaces the missing membership.
	if _, err := f.members.Leave(ctx, pack.ID, rider); !errors.Is(err, ErrNotMember) {
		t.Errorf("double leave: err = %v, want ErrNotMember", err)
	}

	// The rider can come back; history rows stay closed.
	if _, err := f.members.Join(ctx, pack.ID, rider, ""); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if got := activeMemberCount(t, f.orm, pack.ID); got != 2 {
		t.Errorf("active rows = %d, want 2", got)
	}
}

// TestLeaveDropsPackScopedShare: a pack's location feed only ever shows
// active members, so leaving must retract the departing rider's share ahead
// of its TTL.
func TestLeaveDropsPackScopedShare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader := f.addRider(t, "ada")
	rider := f.addRider(t, "lin")

	pack := f.createPack(t, leader, CreateInput{})
	if _, err := f.members.Join(ctx, pack.ID, rider, ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := f.shares.Upsert(ctx, rider, pack.ID, 37.77, -122.42, nil, nil); err != nil {
		t.Fatalf("share: %v", err)
	}
	if _, err := f.shares.Upsert(ctx, rider, uuid.Nil, 37.77, -122.42, nil, nil); err != nil {
		t.Fatalf("global share: %v", err)
	}

	if _, err := f.members.Leave(ctx, pack.ID, rider); err != nil {
		t.Fatalf("leave: %v", err)
	}

	if _, ok := f.shares.Get(rider, pack.ID); ok {
		t.Error("pack-scoped share survived the leave")
	}
	for _, s := range f.shares.ListLive(pack.ID) {
		if s.UserID == rider {
			t.Error("departed rider still listed in pack locations")
		}
	}
	// The rider's global discovery share is theirs to keep.
	if _, ok := f.shares.Get(rider, uuid.Nil); !ok {
		t.Error("global share was dropped on leave")
	}
}

func TestLeaderLeaveSuccession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	leader := f.addRider(t, "ada")
	veteran := f.addRider(t, "lin")
	coLeader := f.addRider(t, "sam")
	newest := f.addRider(t, "kim")

	f.members.now = at(base, 0)
	f.lifecycle.now = at(base, 0)
	pack := f.createPack(t, leader, CreateInput{})

	f.members.now = at(base, time.Minute)
	if _, err := f.members.Join(ctx, pack.ID, veteran, ""); err != nil {
		t.Fatalf("join veteran: %v", err)
	}
	f.members.now = at(base, 2*time.Minute)
	if _, err := f.members.Join(ctx, pack.ID, coLeader, ""); err != nil {
		t.Fatalf("join co-leader: %v", err)
	}
	f.members.now = at(base, 3*time.Minute)
	if _, err := f.members.Join(ctx, pack.ID, newest, ""); err != nil {
		t.Fatalf("join newest: %v", err)
	}

	if _, err := f.members.SetRole(ctx, pack.ID, leader, coLeader, RoleCoLeader); err != nil {
		t.Fatalf("promote co-leader: %v", err)
	}

	// Role tier outranks tenure: the co-leader wins over the older member.
	got, err := f.members.Leave(ctx, pack.ID, leader)
	if err != nil {
		t.Fatalf("leader leave: %v", err)
	}
	if got.LeaderUserID != coLeader {
		t.Errorf("successor = %s, want co-leader %s", got.LeaderUserID, coLeader)
	}

	// With no co-leader left, tenure decides.
	got, err = f.members.Leave(ctx, pack.ID, coLeader)
	if err != nil {
		t.Fatalf("co-leader leave: %v", err)
	}
	if got.LeaderUserID != veteran {
		t.Errorf("successor = %s, want veteran %s", got.LeaderUserID, veteran)
	}

	promoted, err := f.members.activeMembership(ctx, pack.ID, veteran)
	if err != nil {
		t.Fatalf("load promoted: %v", err)
	}
	if promoted.Role != RoleLeader {
		t.Errorf("promoted role = %q, want leader", promoted.Role)
	}

	if got := f.pub.count(subjectLeaderChanged); got != 2 {
		t.Errorf("leader.changed events = %d, want 2", got)
	}
}

func TestLastMemberLeaveDissolvesPack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader := f.addRider(t, "ada")

	pack := f.createPack(t, leader, CreateInput{})

	got, err := f.members.Leave(ctx, pack.ID, leader)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
	if got.EndedAt == nil {
		t.Error("endedAt not stamped on dissolution")
	}
	if got.CurrentMemberCount != 0 {
		t.Errorf("count = %d, want 0", got.CurrentMemberCount)
	}

	if got := f.pub.count(subjectPackCancelled); got != 1 {
		t.Errorf("pack.cancelled events = %d, want 1", got)
	}

	// Cancelled packs reject joins.
	late := f.addRider(t, "late")
	if _, err := f.members.Join(ctx, pack.ID, late, ""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("join cancelled: err = %v, want ErrInvalidState", err)
	}
}

func TestSetRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader := f.addRider(t, "ada")
	rider := f.addRider(t, "lin")

	pack := f.createPack(t, leader, CreateInput{})
	if _, err := f.members.Join(ctx, pack.ID, rider, ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	t.Run("member cannot assign roles", func(t *testing.T) {
		_, err := f.members.SetRole(ctx, pack.ID, rider, leader, RoleMember)
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("err = %v, want ErrForbidden", err)
		}
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		_, err := f.members.SetRole(ctx, pack.ID, leader, rider, "boss")
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("err = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("sole leader cannot demote themselves", func(t *testing.T) {
		_, err := f.members.SetRole(ctx, pack.ID, leader, leader, RoleMember)
		if !errors.Is(err, ErrInvalidOperation) {
			t.Errorf("err = %v, want ErrInvalidOperation", err)
		}
	})

	t.Run("promote to co-leader", func(t *testing.T) {
		got, err := f.members.SetRole(ctx, pack.ID, leader, rider, RoleCoLeader)
		if err != nil {
			t.Fatalf("set role: %v", err)
		}
		if got.Role != RoleCoLeader {
			t.Errorf("role = %q, want co_leader", got.Role)
		}
	})

	t.Run("promote to leader transfers leadership", func(t *testing.T) {
		got, err := f.members.SetRole(ctx, pack.ID, leader, rider, RoleLeader)
		if err != nil {
			t.Fatalf("transfer: %v", err)
		}
		if got.Role != RoleLeader {
			t.Errorf("target role = %q, want leader", got.Role)
		}

		model := packFromDB(t, f.orm, pack.ID)
		if model.LeaderUserID != rider {
			t.Errorf("pack leader = %s, want %s", model.LeaderUserID, rider)
		}

		former, err := f.members.activeMembership(ctx, pack.ID, leader)
		if err != nil {
			t.Fatalf("load former leader: %v", err)
		}
		if former.Role != RoleCoLeader {
			t.Errorf("former leader role = %q, want co_leader", former.Role)
		}
	})
}

func TestInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader := f.addRider(t, "ada")
	member := f.addRider(t, "lin")
	f.addRider(t, "sam")

	pack := f.createPack(t, leader, CreateInput{Visibility: VisibilityPrivate})
	if _, err := f.members.Join(ctx, pack.ID, member, pack.InviteCode); err != nil {
		t.Fatalf("join: %v", err)
	}

	t.Run("member cannot invite", func(t *testing.T) {
		_, err := f.members.Invite(ctx, pack.ID, member, "sam")
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("err = %v, want ErrForbidden", err)
		}
	})

	t.Run("unknown username", func(t *testing.T) {
		_, err := f.members.Invite(ctx, pack.ID, leader, "ghost")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("existing member", func(t *testing.T) {
		_, err := f.members.Invite(ctx, pack.ID, leader, "lin")
		if !errors.Is(err, ErrAlreadyMember) {
			t.Errorf("err = %v, want ErrAlreadyMember", err)
		}
	})

	t.Run("leader invites outsider", func(t *testing.T) {
		note, err := f.members.Invite(ctx, pack.ID, leader, "sam")
		if err != nil {
			t.Fatalf("invite: %v", err)
		}
		if note.InviteCode != pack.InviteCode {
			t.Errorf("notification code = %q, want pack code", note.InviteCode)
		}
		if note.InvitedBy != leader {
			t.Errorf("invitedBy = %s, want leader", note.InvitedBy)
		}
		// The invite is advisory; no membership exists until Join.
		if got := activeMemberCount(t, f.orm, pack.ID); got != 2 {
			t.Errorf("active rows = %d, want 2", got)
		}
	})
}
