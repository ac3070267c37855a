package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type Rider struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username    string    `gorm:"type:text;uniqueIndex;not null"`
	DisplayName string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (Rider) TableName() string { return "riders" }

type Pack struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Name               string         `gorm:"type:text;not null"`
	Description        string         `gorm:"type:text"`
	LeaderUserID       uuid.UUID      `gorm:"type:uuid;not null;index"`
	MaxMembers         int            `gorm:"type:int;not null"`
	CurrentMemberCount int            `gorm:"type:int;not null;default:0"`
	Visibility         string         `gorm:"type:text;not null"`
	InviteCode         *string        `gorm:"type:text;uniqueIndex"`
	Status             string         `gorm:"type:text;not null;index"`
	PlannedRoute       datatypes.JSON `gorm:"type:jsonb"`
	MeetingLat         *float64       `gorm:"type:double precision"`
	MeetingLng         *float64       `gorm:"type:double precision"`
	CreatedAt          time.Time      `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	StartedAt          *time.Time     `gorm:"type:timestamptz"`
	EndedAt            *time.Time     `gorm:"type:timestamptz"`
}

func (Pack) TableName() string { return "packs" }

type PackMembership struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey"`
	PackID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_memberships_pack_user"`
	UserID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_memberships_pack_user"`
	Role     string     `gorm:"type:text;not null"`
	Status   string     `gorm:"type:text;not null;index"`
	JoinedAt time.Time  `gorm:"type:timestamptz;not null"`
	LeftAt   *time.Time `gorm:"type:timestamptz"`
	Pack     Pack       `gorm:"foreignKey:PackID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (PackMembership) TableName() string { return "pack_memberships" }

type HazardReport struct {
	ID                    uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Kind                  string     `gorm:"type:text;not null"`
	Description           string     `gorm:"type:text"`
	Latitude              float64    `gorm:"type:double precision;not null"`
	Longitude             float64    `gorm:"type:double precision;not null"`
	VisibilityRadiusMiles float64    `gorm:"type:double precision;not null"`
	ReportedBy            *uuid.UUID `gorm:"type:uuid"`
	ExpiresAt             *time.Time `gorm:"type:timestamptz"`
	ResolvedAt            *time.Time `gorm:"type:timestamptz"`
	CreatedAt             time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt             time.Time  `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (HazardReport) TableName() string { return "hazard_reports" }

type EmergencyEvent struct {
	ID                    uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID                uuid.UUID  `gorm:"type:uuid;not null;index"`
	Kind                  string     `gorm:"type:text;not null"`
	Latitude              float64    `gorm:"type:double precision;not null"`
	Longitude             float64    `gorm:"type:double precision;not null"`
	VisibilityRadiusMiles float64    `gorm:"type:double precision;not null"`
	ResolvedAt            *time.Time `gorm:"type:timestamptz"`
	CreatedAt             time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (EmergencyEvent) TableName() string { return "emergency_events" }

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(
		&Rider{},
		&Pack{},
		&PackMembership{},
		&HazardReport{},
		&EmergencyEvent{},
	); err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().CreateConstraint(&PackMembership{}, "Pack")
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&EmergencyEvent{},
		&HazardReport{},
		&PackMembership{},
		&Pack{},
		&Rider{},
	)
}
