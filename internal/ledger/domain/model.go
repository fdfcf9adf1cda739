package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	providerdomain "github.com/taskora-dev/taskora/internal/provider/domain"
	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	StatusPending   AttemptStatus = "pending"
	StatusCompleted AttemptStatus = "completed"
	StatusFailed    AttemptStatus = "failed"
	StatusCancelled AttemptStatus = "cancelled"
)

func (s AttemptStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var (
	ErrAttemptNotFound       = errors.New("payment_attempt_not_found")
	ErrAlreadyTerminal       = errors.New("payment_attempt_already_terminal")
	ErrConflictingSettlement = errors.New("conflicting_settlement")
	ErrPendingAttemptExists  = errors.New("pending_attempt_exists")
)

// PaymentAttempt is one row in the payment ledger. An attempt is created
// pending, gets a gateway token attached once the invoice exists, and moves
// to exactly one terminal status. Terminal rows are never rewritten.
type PaymentAttempt struct {
	ID             snowflake.ID           `gorm:"primaryKey;autoIncrement:false"`
	ProviderID     snowflake.ID           `gorm:"column:provider_id;index"`
	Tier           providerdomain.Tier    `gorm:"column:tier"`
	AmountCents    int64                  `gorm:"column:amount_cents"`
	DurationMonths int                    `gorm:"column:duration_months"`
	GatewayToken   *string                `gorm:"column:gateway_token"`
	Status         AttemptStatus          `gorm:"column:status"`
	PaidAt         *time.Time             `gorm:"column:paid_at"`
	ExpiresAt      *time.Time             `gorm:"column:expires_at"`
	RawPayload     datatypes.JSON         `gorm:"column:raw_gateway_payload"`
	CreatedAt      time.Time              `gorm:"column:created_at"`
	UpdatedAt      time.Time              `gorm:"column:updated_at"`
}

func (PaymentAttempt) TableName() string {
	return "payment_attempts"
}
