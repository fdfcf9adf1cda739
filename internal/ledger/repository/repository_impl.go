package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/taskora-dev/taskora/internal/ledger/domain"
	providerdomain "github.com/taskora-dev/taskora/internal/provider/domain"
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

func (r *repo) RecordPending(ctx context.Context, db *gorm.DB, attempt *domain.PaymentAttempt) error {
	// The partial unique index on (provider_id) WHERE status = 'pending' is
	// the real guard; the pre-check just gives a cleaner error on the common
	// path.
	var count int64
	if err := db.WithContext(ctx).
		Model(&domain.PaymentAttempt{}).
		Where("provider_id = ? AND status = ?", attempt.ProviderID, domain.StatusPending).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrPendingAttemptExists
	}

	attempt.Status = domain.StatusPending
	if err := db.WithContext(ctx).Create(attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrPendingAttemptExists
		}
		return err
	}
	return nil
}

func (r *repo) AttachToken(ctx context.Context, db *gorm.DB, id snowflake.ID, token string, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE payment_attempts SET gateway_token = ?, updated_at = ? WHERE id = ? AND status = ?`,
		token,
		now,
		id,
		domain.StatusPending,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (r *repo) MarkTerminal(ctx context.Context, tx *gorm.DB, attempt *domain.PaymentAttempt) error {
	if !attempt.Status.Terminal() {
		return errors.New("mark_terminal_requires_terminal_status")
	}
	result := tx.WithContext(ctx).Exec(
		`UPDATE payment_attempts
		 SET status = ?, paid_at = ?, expires_at = ?, raw_gateway_payload = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		attempt.Status,
		attempt.PaidAt,
		attempt.ExpiresAt,
		attempt.RawPayload,
		attempt.UpdatedAt,
		attempt.ID,
		domain.StatusPending,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Replaying the same terminal status is an idempotent success; only a
		// divergent one is an error.
		current, err := r.FindByID(ctx, tx, attempt.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrAttemptNotFound
		}
		if current.Status == attempt.Status {
			return nil
		}
		return domain.ErrAlreadyTerminal
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentAttempt, error) {
	var attempt domain.PaymentAttempt
	if err := db.WithContext(ctx).First(&attempt, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

func (r *repo) FindByToken(ctx context.Context, db *gorm.DB, token string) (*domain.PaymentAttempt, error) {
	var attempt domain.PaymentAttempt
	if err := db.WithContext(ctx).First(&attempt, "gateway_token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

func (r *repo) FindByTokenForUpdate(ctx context.Context, tx *gorm.DB, token string) (*domain.PaymentAttempt, error) {
	var attempt domain.PaymentAttempt
	if err := lockForUpdate(tx.WithContext(ctx)).
		First(&attempt, "gateway_token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

func (r *repo) CancelStaleOlderThan(ctx context.Context, db *gorm.DB, cutoff, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payment_attempts SET status = ?, updated_at = ? WHERE status = ? AND created_at < ?`,
		domain.StatusCancelled,
		now,
		domain.StatusPending,
		cutoff,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) LastCompletedTier(ctx context.Context, db *gorm.DB, providerID snowflake.ID) (providerdomain.Tier, error) {
	var attempt domain.PaymentAttempt
	err := db.WithContext(ctx).
		Where("provider_id = ? AND status = ?", providerID, domain.StatusCompleted).
		Order("paid_at DESC").
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return attempt.Tier, nil
}
