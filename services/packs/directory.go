package packs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserDirectory resolves identities for invites and member views. The
// identity service owns the data; this subsystem only reads it.
type UserDirectory interface {
	Resolve(ctx context.Context, username string) (Rider, error)
	RidersByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Rider, error)
}

type riderModel struct {
	ID          uuid.UUID `gorm:"primaryKey"`
	Username    string    `gorm:"uniqueIndex;not null"`
	DisplayName string
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime"`
}

func (riderModel) TableName() string { return "riders" }

func (r riderModel) toAPI() Rider {
	return Rider{ID: r.ID, Username: r.Username, DisplayName: r.DisplayName}
}

type gormDirectory struct {
	orm *gorm.DB
}

// NewDirectory returns a UserDirectory backed by the shared riders table.
func NewDirectory(orm *gorm.DB) UserDirectory {
	return &gormDirectory{orm: orm}
}

func (d *gormDirectory) Resolve(ctx context.Context, username string) (Rider, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Rider{}, fmt.Errorf("username is required: %w", ErrInvalidArgument)
	}

	var model riderModel
	err := d.orm.WithContext(ctx).Where("username = ?", username).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Rider{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return Rider{}, storeErr("resolve username", err)
	}
	return model.toAPI(), nil
}

func (d *gormDirectory) RidersByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Rider, error) {
	out := make(map[uuid.UUID]Rider, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var models []riderModel
	if err := d.orm.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, storeErr("load riders", err)
	}
	for _, m := range models {
		out[m.ID] = m.toAPI()
	}
	return out, nil
}
