package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierSimple  Tier = "simple"
	TierPremium Tier = "premium"
)

// Fixed monthly prices in minor currency units.
const (
	PriceSimple  int64 = 900
	PricePremium int64 = 2900
)

// Free accounts get a 30-day window before the expiry sweep first looks at them.
const FreeTrialDays = 30

var (
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidTier      = errors.New("invalid_tier")
	ErrValidation       = errors.New("validation_error")
)

func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFree, TierSimple, TierPremium:
		return Tier(s), nil
	default:
		return "", ErrInvalidTier
	}
}

func (t Tier) Paid() bool {
	return t == TierSimple || t == TierPremium
}

// MonthlyPrice returns the fixed monthly price for a paid tier.
func MonthlyPrice(t Tier) (int64, error) {
	switch t {
	case TierSimple:
		return PriceSimple, nil
	case TierPremium:
		return PricePremium, nil
	default:
		return 0, ErrInvalidTier
	}
}

// Provider is the marketplace account holding both the subscription state
// and the moderation overlay. The two axes are orthogonal: a provider can be
// premium and locked at the same time.
type Provider struct {
	ID    snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name  string       `json:"name" gorm:"type:text;not null"`
	Email string       `json:"email" gorm:"type:text;not null"`

	Tier      Tier       `json:"tier" gorm:"type:varchar(16);not null;default:'free'"`
	ExpiresAt *time.Time `json:"expires_at"`
	AutoRenew bool       `json:"auto_renew" gorm:"not null;default:false"`
	StartedAt *time.Time `json:"started_at"`

	IsActive     bool       `json:"is_active" gorm:"not null;default:true"`
	IsHidden     bool       `json:"is_hidden" gorm:"not null;default:false"`
	IsLocked     bool       `json:"is_locked" gorm:"not null;default:false"`
	LockedUntil  *time.Time `json:"locked_until"`
	StatusReason *string    `json:"status_reason" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Provider) TableName() string { return "providers" }

// Premium is the single source of truth for the premium display flag.
// It is computed on read; no stored boolean exists to drift from the tier.
func (p *Provider) Premium(now time.Time) bool {
	if p.Tier != TierPremium {
		return false
	}
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}

// Locked reports the effective lock state, honouring a lapsed locked_until.
func (p *Provider) Locked(now time.Time) bool {
	if !p.IsLocked {
		return false
	}
	return p.LockedUntil == nil || p.LockedUntil.After(now)
}
