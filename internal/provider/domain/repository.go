package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, provider *Provider) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Provider, error)
	// FindByIDForUpdate takes a row lock; only call inside a transaction.
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Provider, error)
	UpdateSubscription(ctx context.Context, tx *gorm.DB, provider *Provider) error
	UpdateModeration(ctx context.Context, db *gorm.DB, provider *Provider) error
	UpdateAutoRenew(ctx context.Context, db *gorm.DB, id snowflake.ID, enabled bool, now time.Time) error

	ListExpired(ctx context.Context, db *gorm.DB, now time.Time) ([]Provider, error)
	ListAutoRenewDue(ctx context.Context, db *gorm.DB, now time.Time) ([]Provider, error)
	ListByExpiryWindow(ctx context.Context, db *gorm.DB, start, end time.Time) ([]Provider, error)
}
