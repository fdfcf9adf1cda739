package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	providerdomain "github.com/taskora-dev/taskora/internal/provider/domain"
	"gorm.io/gorm"
)

type Repository interface {
	// RecordPending inserts a new pending attempt. Returns
	// ErrPendingAttemptExists when the provider already has one in flight.
	RecordPending(ctx context.Context, db *gorm.DB, attempt *PaymentAttempt) error
	AttachToken(ctx context.Context, db *gorm.DB, id snowflake.ID, token string, now time.Time) error
	// MarkTerminal moves a pending attempt into a terminal status. Writing
	// the status the row already carries is an idempotent no-op; returns
	// ErrAlreadyTerminal when the row settled with a different status.
	MarkTerminal(ctx context.Context, tx *gorm.DB, attempt *PaymentAttempt) error

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentAttempt, error)
	FindByToken(ctx context.Context, db *gorm.DB, token string) (*PaymentAttempt, error)
	// FindByTokenForUpdate takes a row lock; only call inside a transaction.
	FindByTokenForUpdate(ctx context.Context, tx *gorm.DB, token string) (*PaymentAttempt, error)

	CancelStaleOlderThan(ctx context.Context, db *gorm.DB, cutoff, now time.Time) (int64, error)
	// LastCompletedTier reports the tier of the provider's most recent
	// completed attempt, or "" when none exists.
	LastCompletedTier(ctx context.Context, db *gorm.DB, providerID snowflake.ID) (providerdomain.Tier, error)
}
