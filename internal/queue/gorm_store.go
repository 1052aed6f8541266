package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kioskpos/internal/model"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultMaxAttempts = 3

type gormStore struct {
	db          *gorm.DB
	maxAttempts int
}

// NewStore creates the SQLite-backed queue store. Entries left in_flight by a
// crash are reclaimed to pending so a restart never loses an unacknowledged
// sale.
func NewStore(db *gorm.DB, maxAttempts int) (Store, error) {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	s := &gormStore{db: db, maxAttempts: maxAttempts}

	res := db.Model(&model.QueueEntry{}).
		Where("status = ?", model.QueueInFlight).
		Update("status", model.QueuePending)
	if res.Error != nil {
		return nil, fmt.Errorf("queue: reclaim in-flight entries: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Warn().Int64("reclaimed", res.RowsAffected).Msg("queue: reclaimed in-flight entries after restart")
	}
	return s, nil
}

func (s *gormStore) Enqueue(ctx context.Context, sale *model.Sale) (string, error) {
	payload, err := json.Marshal(sale)
	if err != nil {
		return "", fmt.Errorf("queue: marshal sale %s: %w", sale.LocalID, err)
	}
	entry := model.QueueEntry{
		LocalID: sale.LocalID,
		Payload: payload,
		Status:  model.QueuePending,
	}
	// Insert-or-ignore on local_id: two racing enqueues of the same sale both
	// succeed and exactly one row exists — no lookup-then-create window.
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "local_id"}},
		DoNothing: true,
	}).Create(&entry)
	if res.Error != nil {
		return "", fmt.Errorf("queue: enqueue %s: %w", sale.LocalID, res.Error)
	}
	if res.RowsAffected == 0 {
		return sale.LocalID, nil
	}
	log.Info().Str("local_id", sale.LocalID).Msg("queue: sale enqueued")
	return entry.LocalID, nil
}

func (s *gormStore) NextPending(ctx context.Context, afterID int64) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	err := s.db.WithContext(ctx).
		Where("status = ? AND id > ?", model.QueuePending, afterID).
		Order("id ASC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: next pending: %w", err)
	}
	return &entry, nil
}

func (s *gormStore) MarkInFlight(ctx context.Context, localID string) error {
	return s.updateStatus(ctx, localID, model.QueuePending, model.QueueInFlight)
}

func (s *gormStore) MarkSucceeded(ctx context.Context, localID string) error {
	res := s.db.WithContext(ctx).Where("local_id = ?", localID).Delete(&model.QueueEntry{})
	if res.Error != nil {
		return fmt.Errorf("queue: ack %s: %w", localID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) MarkFailed(ctx context.Context, localID string, cause string) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	if err := s.db.WithContext(ctx).Where("local_id = ?", localID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("queue: load %s: %w", localID, err)
	}

	entry.Attempts++
	entry.LastError = &cause
	if entry.Attempts >= s.maxAttempts {
		entry.Status = model.QueueFailedPermanent
	} else {
		entry.Status = model.QueuePending
	}
	entry.UpdatedAt = time.Now()

	if err := s.db.WithContext(ctx).Save(&entry).Error; err != nil {
		return nil, fmt.Errorf("queue: record failure for %s: %w", localID, err)
	}
	return &entry, nil
}

func (s *gormStore) Requeue(ctx context.Context, localID string) error {
	res := s.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Where("local_id = ? AND status = ?", localID, model.QueueFailedPermanent).
		Updates(map[string]interface{}{
			"status":     model.QueuePending,
			"attempts":   0,
			"last_error": nil,
		})
	if res.Error != nil {
		return fmt.Errorf("queue: requeue %s: %w", localID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	log.Info().Str("local_id", localID).Msg("queue: entry requeued by operator")
	return nil
}

func (s *gormStore) Count(ctx context.Context) (Counts, error) {
	var counts Counts
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return counts, fmt.Errorf("queue: count: %w", err)
	}
	for _, r := range rows {
		switch r.Status {
		case model.QueuePending:
			counts.Pending = r.N
		case model.QueueInFlight:
			counts.InFlight = r.N
		case model.QueueFailedPermanent:
			counts.FailedPermanent = r.N
		}
	}
	return counts, nil
}

func (s *gormStore) List(ctx context.Context, status string, limit int) ([]model.QueueEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Model(&model.QueueEntry{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var entries []model.QueueEntry
	err := q.Order("id DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

func (s *gormStore) updateStatus(ctx context.Context, localID, from, to string) error {
	res := s.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Where("local_id = ? AND status = ?", localID, from).
		Update("status", to)
	if res.Error != nil {
		return fmt.Errorf("queue: %s → %s for %s: %w", from, to, localID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
