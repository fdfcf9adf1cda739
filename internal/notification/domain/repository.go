package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// MarkSent records the delivery. Reports false when a record with the
	// same (provider_id, kind, dedup_key) already exists.
	MarkSent(ctx context.Context, db *gorm.DB, record *Record) (bool, error)
}
