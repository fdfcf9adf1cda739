package repository

import (
	"context"
	"errors"

	"github.com/taskora-dev/taskora/internal/notification/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) MarkSent(ctx context.Context, db *gorm.DB, record *domain.Record) (bool, error) {
	if err := db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
