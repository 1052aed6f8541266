package catalog

import (
	"context"
	"fmt"
	"time"

	"kioskpos/internal/dto"
	"kioskpos/internal/model"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormStore struct{ db *gorm.DB }

// NewStore creates the SQLite-backed catalog store.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) ApplyProductDelta(ctx context.Context, delta *dto.ProductDelta) error {
	if len(delta.Changed) == 0 && len(delta.DeletedIDs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for i := range delta.Changed {
			delta.Changed[i].SyncedAt = now
		}
		if len(delta.Changed) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).
				Create(&delta.Changed).Error; err != nil {
				return err
			}
		}
		if len(delta.DeletedIDs) > 0 {
			if err := tx.Where("id IN ?", delta.DeletedIDs).
				Delete(&model.Product{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("catalog: apply product delta: %w", err)
	}
	log.Info().
		Int("changed", len(delta.Changed)).
		Int("deleted", len(delta.DeletedIDs)).
		Msg("catalog: product delta applied")
	return nil
}

func (s *gormStore) ApplyCustomerDelta(ctx context.Context, delta *dto.CustomerDelta) error {
	if len(delta.Changed) == 0 && len(delta.DeletedIDs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for i := range delta.Changed {
			delta.Changed[i].SyncedAt = now
		}
		if len(delta.Changed) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).
				Create(&delta.Changed).Error; err != nil {
				return err
			}
		}
		if len(delta.DeletedIDs) > 0 {
			if err := tx.Where("id IN ?", delta.DeletedIDs).
				Delete(&model.Customer{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("catalog: apply customer delta: %w", err)
	}
	log.Info().
		Int("changed", len(delta.Changed)).
		Int("deleted", len(delta.DeletedIDs)).
		Msg("catalog: customer delta applied")
	return nil
}

func (s *gormStore) SearchProducts(ctx context.Context, query string, limit int) ([]model.Product, error) {
	if limit <= 0 {
		limit = 50
	}
	var products []model.Product
	like := "%" + query + "%"
	err := s.db.WithContext(ctx).
		Where("active = ? AND (name LIKE ? OR barcode = ?)", true, like, query).
		Order("name ASC").
		Limit(limit).
		Find(&products).Error
	return products, err
}

func (s *gormStore) SearchCustomers(ctx context.Context, query string, limit int) ([]model.Customer, error) {
	if limit <= 0 {
		limit = 50
	}
	var customers []model.Customer
	like := "%" + query + "%"
	err := s.db.WithContext(ctx).
		Where("name LIKE ? OR phone = ?", like, query).
		Order("name ASC").
		Limit(limit).
		Find(&customers).Error
	return customers, err
}
