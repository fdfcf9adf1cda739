package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/taskora-dev/taskora/internal/ledger/domain"
	providerdomain "github.com/taskora-dev/taskora/internal/provider/domain"
)

var (
	ErrUnknownStatus  = errors.New("unknown_gateway_status")
	ErrCheckoutFailed = errors.New("checkout_failed")
)

// Outcome is the normalized settlement status derived from whatever the
// gateway reports on its webhook or poll response.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

func (o Outcome) Terminal() bool {
	return o == OutcomeCompleted || o == OutcomeFailed
}

// NormalizeStatus maps the gateway's status vocabulary onto the three
// outcomes the ledger understands.
func NormalizeStatus(raw string) (Outcome, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PAID", "SETTLED", "COMPLETED", "SUCCESS":
		return OutcomeCompleted, nil
	case "EXPIRED", "FAILED", "CANCELLED", "VOIDED":
		return OutcomeFailed, nil
	case "PENDING", "ACTIVE", "UNPAID":
		return OutcomePending, nil
	default:
		return "", ErrUnknownStatus
	}
}

type Checkout struct {
	AttemptID   snowflake.ID
	Token       string
	CheckoutURL string
	AmountCents int64
}

type VerifyResult struct {
	Outcome Outcome
	Attempt *ledgerdomain.PaymentAttempt
}

type Service interface {
	// Initiate records a pending attempt and creates the gateway invoice.
	Initiate(ctx context.Context, providerID snowflake.ID, tier providerdomain.Tier, months int) (*Checkout, error)
	// Reconcile applies one settlement report for a gateway token. It is
	// idempotent: replays of an already-applied status are no-ops, and a
	// different terminal status for a settled attempt is rejected with
	// ledgerdomain.ErrConflictingSettlement.
	Reconcile(ctx context.Context, token string, outcome Outcome, rawPayload []byte) error
	// VerifyByToken polls the gateway for the token's current status,
	// reconciles it if terminal, and reports the resulting state.
	VerifyByToken(ctx context.Context, token string) (*VerifyResult, error)
}
