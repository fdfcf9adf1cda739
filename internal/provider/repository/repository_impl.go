package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/taskora-dev/taskora/internal/provider/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// lockForUpdate adds a row lock on backends that have them. sqlite (tests)
// does not; its single writer serializes instead.
func lockForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, provider *domain.Provider) error {
	return db.WithContext(ctx).Create(provider).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Provider, error) {
	var provider domain.Provider
	if err := db.WithContext(ctx).First(&provider, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &provider, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Provider, error) {
	var provider domain.Provider
	if err := lockForUpdate(tx.WithContext(ctx)).
		First(&provider, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &provider, nil
}

func (r *repo) UpdateSubscription(ctx context.Context, tx *gorm.DB, provider *domain.Provider) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE providers
		 SET tier = ?, expires_at = ?, auto_renew = ?, started_at = ?, updated_at = ?
		 WHERE id = ?`,
		provider.Tier,
		provider.ExpiresAt,
		provider.AutoRenew,
		provider.StartedAt,
		provider.UpdatedAt,
		provider.ID,
	).Error
}

func (r *repo) UpdateModeration(ctx context.Context, db *gorm.DB, provider *domain.Provider) error {
	return db.WithContext(ctx).Exec(
		`UPDATE providers
		 SET is_active = ?, is_hidden = ?, is_locked = ?, locked_until = ?, status_reason = ?, updated_at = ?
		 WHERE id = ?`,
		provider.IsActive,
		provider.IsHidden,
		provider.IsLocked,
		provider.LockedUntil,
		provider.StatusReason,
		provider.UpdatedAt,
		provider.ID,
	).Error
}

func (r *repo) UpdateAutoRenew(ctx context.Context, db *gorm.DB, id snowflake.ID, enabled bool, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE providers SET auto_renew = ?, updated_at = ? WHERE id = ?`,
		enabled,
		now,
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrProviderNotFound
	}
	return nil
}

func (r *repo) ListExpired(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Provider, error) {
	var providers []domain.Provider
	err := db.WithContext(ctx).
		Where("tier <> ? AND expires_at IS NOT NULL AND expires_at <= ?", domain.TierFree, now).
		Order("id").
		Find(&providers).Error
	return providers, err
}

// ListAutoRenewDue intentionally does not filter on tier: the expiry sweep
// runs first in the same batch and may already have downgraded a renewal
// candidate to free. The renewal tier is resolved from payment history.
func (r *repo) ListAutoRenewDue(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Provider, error) {
	var providers []domain.Provider
	err := db.WithContext(ctx).
		Where("auto_renew = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
		Order("id").
		Find(&providers).Error
	return providers, err
}

func (r *repo) ListByExpiryWindow(ctx context.Context, db *gorm.DB, start, end time.Time) ([]domain.Provider, error) {
	var providers []domain.Provider
	err := db.WithContext(ctx).
		Where("tier <> ? AND expires_at >= ? AND expires_at < ?", domain.TierFree, start, end).
		Order("id").
		Find(&providers).Error
	return providers, err
}
