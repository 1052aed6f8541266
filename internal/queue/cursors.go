package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kioskpos/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormCursorStore struct{ db *gorm.DB }

// NewCursorStore creates the SQLite-backed cursor store.
func NewCursorStore(db *gorm.DB) CursorStore {
	return &gormCursorStore{db: db}
}

// Cursor returns the stored cursor for a resource, or a zero cursor when the
// resource has never been pulled (an empty Since requests the full dataset).
func (s *gormCursorStore) Cursor(ctx context.Context, resource string) (*model.SyncCursor, error) {
	var c model.SyncCursor
	err := s.db.WithContext(ctx).Where("resource = ?", resource).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.SyncCursor{Resource: resource}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: load cursor %s: %w", resource, err)
	}
	return &c, nil
}

func (s *gormCursorStore) Advance(ctx context.Context, resource string, since string) error {
	now := time.Now()
	c := model.SyncCursor{Resource: resource, Since: since, LastPulledAt: &now}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resource"}},
		DoUpdates: clause.AssignmentColumns([]string{"since", "last_pulled_at", "updated_at"}),
	}).Create(&c).Error
	if err != nil {
		return fmt.Errorf("queue: advance cursor %s: %w", resource, err)
	}
	return nil
}
