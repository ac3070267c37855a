package packs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:packs_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	orm, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open in-memory sqlite: %v", err)
	}

	sqlDB, err := orm.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := orm.AutoMigrate(&packModel{}, &membershipModel{}, &riderModel{}); err != nil {
		t.Fatalf("migrate test schema: %v", err)
	}
	return orm
}

// recordingPublisher captures emitted events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	Subject string
	Payload map[string]any
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	payload, _ := v.(map[string]any)
	p.events = append(p.events, recordedEvent{Subject: subject, Payload: payload})
	return nil
}

func (p *recordingPublisher) count(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Subject == subject {
			n++
		}
	}
	return n
}

type fixture struct {
	orm       *gorm.DB
	lifecycle *Lifecycle
	members   *Members
	shares    *ShareStore
	pub       *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	orm := newTestDB(t)
	pub := &recordingPublisher{}
	log := zerolog.Nop()
	locks := newPackLocks()
	shares := NewShareStore(DefaultShareTTL, pub, log)
	directory := NewDirectory(orm)

	return &fixture{
		orm:       orm,
		lifecycle: NewLifecycle(orm, locks, shares, directory, pub, log, DefaultStaleAfter, DefaultMaxMembers),
		members:   NewMembers(orm, locks, shares, directory, pub, log),
		shares:    shares,
		pub:       pub,
	}
}

func (f *fixture) addRider(t *testing.T, username string) uuid.UUID {
	t.Helper()
	model := riderModel{ID: uuid.New(), Username: username, DisplayName: username}
	if err := f.orm.Create(&model).Error; err != nil {
		t.Fatalf("create rider %s: %v", username, err)
	}
	return model.ID
}

func (f *fixture) createPack(t *testing.T, leader uuid.UUID, in CreateInput) Pack {
	t.Helper()
	in.LeaderUserID = leader
	if in.Name == "" {
		in.Name = "sunday ride"
	}
	pack, err := f.lifecycle.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create pack: %v", err)
	}
	return pack
}

func packFromDB(t *testing.T, orm *gorm.DB, id uuid.UUID) packModel {
	t.Helper()
	var model packModel
	if err := orm.First(&model, "id = ?", id).Error; err != nil {
		t.Fatalf("load pack %s: %v", id, err)
	}
	return model
}

func activeMemberCount(t *testing.T, orm *gorm.DB, packID uuid.UUID) int {
	t.Helper()
	var n int64
	if err := orm.Model(&membershipModel{}).
		Where("pack_id = ? AND status = ?", packID, MemberStatusActive).
		Count(&n).Error; err != nil {
		t.Fatalf("count members: %v", err)
	}
	return int(n)
}

func at(base time.Time, offset time.Duration) func() time.Time {
	return func() time.Time { return base.Add(offset) }
}
