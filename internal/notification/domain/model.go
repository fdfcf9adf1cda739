package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindExpiryWarning   Kind = "expiry_warning"
	KindExpired         Kind = "expired"
	KindRenewalSuccess  Kind = "renewal_success"
	KindRenewalFailure  Kind = "renewal_failure"
	KindPaymentReceived Kind = "payment_received"
)

// Notifier delivers subscription lifecycle events. Delivery is best effort:
// implementations log failures and never propagate them into the calling
// write path.
type Notifier interface {
	Notify(ctx context.Context, kind Kind, providerID snowflake.ID, payload map[string]any)
}

// Record is one delivered notification. The unique index over
// (provider_id, kind, dedup_key) is what keeps daily sweeps from re-sending
// the same warning.
type Record struct {
	ID         snowflake.ID   `gorm:"primaryKey;autoIncrement:false"`
	ProviderID snowflake.ID   `gorm:"column:provider_id"`
	Kind       Kind           `gorm:"column:kind"`
	DedupKey   string         `gorm:"column:dedup_key"`
	Payload    datatypes.JSON `gorm:"column:payload"`
	SentAt     time.Time      `gorm:"column:sent_at"`
}

func (Record) TableName() string {
	return "notification_log"
}
