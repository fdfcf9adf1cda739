package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/taskora-dev/taskora/internal/clock"
	"github.com/taskora-dev/taskora/internal/gateway"
	ledgerdomain "github.com/taskora-dev/taskora/internal/ledger/domain"
	notificationdomain "github.com/taskora-dev/taskora/internal/notification/domain"
	"github.com/taskora-dev/taskora/internal/observability"
	providerdomain "github.com/taskora-dev/taskora/internal/provider/domain"
	"github.com/taskora-dev/taskora/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	gateway      gateway.Client
	ledgerRepo   ledgerdomain.Repository
	providerRepo providerdomain.Repository
	notifier     notificationdomain.Notifier
	metrics      *observability.Metrics
	perProvider  *keyedMutex
}

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Gateway      gateway.Client
	LedgerRepo   ledgerdomain.Repository
	ProviderRepo providerdomain.Repository
	Notifier     notificationdomain.Notifier
	Metrics      *observability.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("settlement.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		gateway:      p.Gateway,
		ledgerRepo:   p.LedgerRepo,
		providerRepo: p.ProviderRepo,
		notifier:     p.Notifier,
		metrics:      p.Metrics,
		perProvider:  newKeyedMutex(),
	}
}

func (s *Service) Initiate(ctx context.Context, providerID snowflake.ID, tier providerdomain.Tier, months int) (*domain.Checkout, error) {
	if !tier.Paid() {
		return nil, providerdomain.ErrInvalidTier
	}
	if months < 1 || months > 12 {
		return nil, providerdomain.ErrValidation
	}

	provider, err := s.providerRepo.FindByID(ctx, s.db, providerID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, providerdomain.ErrProviderNotFound
	}

	price, err := providerdomain.MonthlyPrice(tier)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx)
	attempt := &ledgerdomain.PaymentAttempt{
		ID:             s.genID.Generate(),
		ProviderID:     providerID,
		Tier:           tier,
		AmountCents:    price * int64(months),
		DurationMonths: months,
		Status:         ledgerdomain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.ledgerRepo.RecordPending(ctx, s.db, attempt); err != nil {
		return nil, err
	}

	// The metadata round-trips through the gateway and is the only context
	// available when the settlement report arrives.
	invoice, err := s.gateway.CreateInvoice(ctx,
		attempt.AmountCents,
		fmt.Sprintf("%s subscription, %d month(s)", tier, months),
		gateway.Metadata{
			"attempt_id":  attempt.ID.String(),
			"provider_id": providerID.String(),
			"tier":        string(tier),
			"months":      strconv.Itoa(months),
		},
	)
	if err != nil {
		s.failAttempt(ctx, attempt)
		return nil, err
	}

	if err := s.ledgerRepo.AttachToken(ctx, s.db, attempt.ID, invoice.Token, s.clock.Now(ctx)); err != nil {
		return nil, err
	}

	s.log.Info("checkout initiated",
		zap.String("provider_id", providerID.String()),
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("tier", string(tier)),
		zap.Int("months", months))

	return &domain.Checkout{
		AttemptID:   attempt.ID,
		Token:       invoice.Token,
		CheckoutURL: invoice.CheckoutURL,
		AmountCents: attempt.AmountCents,
	}, nil
}

// failAttempt marks the attempt failed when invoice creation never got off
// the ground, releasing the single-pending slot so a retry goes through.
func (s *Service) failAttempt(ctx context.Context, attempt *ledgerdomain.PaymentAttempt) {
	attempt.Status = ledgerdomain.StatusFailed
	attempt.UpdatedAt = s.clock.Now(ctx)
	if err := s.ledgerRepo.MarkTerminal(ctx, s.db, attempt); err != nil {
		s.log.Error("fail pending attempt",
			zap.String("attempt_id", attempt.ID.String()),
			zap.Error(err))
	}
}

func (s *Service) Reconcile(ctx context.Context, token string, outcome domain.Outcome, rawPayload []byte) error {
	if !outcome.Terminal() {
		return nil
	}

	// Unknown tokens are a benign no-op: the gateway may replay webhooks for
	// invoices created outside this deployment.
	peek, err := s.ledgerRepo.FindByToken(ctx, s.db, token)
	if err != nil {
		return err
	}
	if peek == nil {
		s.log.Warn("settlement for unknown token", zap.String("token", token))
		return nil
	}

	key := int64(peek.ProviderID)
	s.perProvider.Lock(key)
	defer s.perProvider.Unlock(key)

	var (
		applied *ledgerdomain.PaymentAttempt
		renewed bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempt, err := s.ledgerRepo.FindByTokenForUpdate(ctx, tx, token)
		if err != nil {
			return err
		}
		if attempt == nil {
			return nil
		}

		if attempt.Status.Terminal() {
			if sameOutcome(attempt.Status, outcome) {
				return nil
			}
			s.metrics.SettlementConflict.Inc()
			s.log.Error("conflicting settlement",
				zap.String("token", token),
				zap.String("recorded", string(attempt.Status)),
				zap.String("reported", string(outcome)))
			return ledgerdomain.ErrConflictingSettlement
		}

		now := s.clock.Now(ctx)
		if outcome == domain.OutcomeFailed {
			attempt.Status = ledgerdomain.StatusFailed
			attempt.RawPayload = datatypes.JSON(rawPayload)
			attempt.UpdatedAt = now
			if err := s.ledgerRepo.MarkTerminal(ctx, tx, attempt); err != nil {
				return err
			}
			applied = attempt
			return nil
		}

		provider, err := s.providerRepo.FindByIDForUpdate(ctx, tx, attempt.ProviderID)
		if err != nil {
			return err
		}
		if provider == nil {
			return providerdomain.ErrProviderNotFound
		}

		// Same tier with time remaining extends the current period. Any other
		// case, including a provider the expiry sweep already moved to free,
		// starts a fresh period from now. This is what heals the race where a
		// renewal settles moments after the downgrade.
		base := now
		if provider.Tier == attempt.Tier && provider.ExpiresAt != nil && provider.ExpiresAt.After(now) {
			base = *provider.ExpiresAt
			renewed = true
		}
		newExpiry := base.AddDate(0, attempt.DurationMonths, 0)

		attempt.Status = ledgerdomain.StatusCompleted
		attempt.PaidAt = &now
		attempt.ExpiresAt = &newExpiry
		attempt.RawPayload = datatypes.JSON(rawPayload)
		attempt.UpdatedAt = now
		if err := s.ledgerRepo.MarkTerminal(ctx, tx, attempt); err != nil {
			return err
		}

		if provider.Tier != attempt.Tier || provider.StartedAt == nil {
			provider.StartedAt = &now
		}
		provider.Tier = attempt.Tier
		provider.ExpiresAt = &newExpiry
		provider.AutoRenew = true
		provider.UpdatedAt = now
		if err := s.providerRepo.UpdateSubscription(ctx, tx, provider); err != nil {
			return err
		}

		applied = attempt
		return nil
	})
	if err != nil {
		return err
	}
	if applied == nil {
		return nil
	}

	s.metrics.SettlementsTotal.WithLabelValues(string(applied.Status)).Inc()
	s.log.Info("settlement applied",
		zap.String("token", token),
		zap.String("provider_id", applied.ProviderID.String()),
		zap.String("status", string(applied.Status)))

	if applied.Status == ledgerdomain.StatusCompleted {
		s.notifier.Notify(ctx, notificationdomain.KindPaymentReceived, applied.ProviderID, map[string]any{
			"dedup_key": token,
			"tier":      string(applied.Tier),
			"months":    applied.DurationMonths,
			"amount":    applied.AmountCents,
		})
		if renewed {
			s.notifier.Notify(ctx, notificationdomain.KindRenewalSuccess, applied.ProviderID, map[string]any{
				"dedup_key":  token,
				"tier":       string(applied.Tier),
				"expires_at": applied.ExpiresAt.Format("2006-01-02"),
			})
		}
	}
	return nil
}

func (s *Service) VerifyByToken(ctx context.Context, token string) (*domain.VerifyResult, error) {
	status, err := s.gateway.QueryStatus(ctx, token)
	if err != nil {
		if errors.Is(err, gateway.ErrTokenNotFound) {
			return s.localResult(ctx, token)
		}
		return nil, err
	}

	outcome, err := domain.NormalizeStatus(status.Status)
	if err != nil {
		return nil, err
	}

	if outcome.Terminal() {
		if err := s.Reconcile(ctx, token, outcome, status.RawPayload); err != nil {
			return nil, err
		}
	}
	return s.localResult(ctx, token)
}

func (s *Service) localResult(ctx context.Context, token string) (*domain.VerifyResult, error) {
	attempt, err := s.ledgerRepo.FindByToken(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, ledgerdomain.ErrAttemptNotFound
	}

	outcome := domain.OutcomePending
	switch attempt.Status {
	case ledgerdomain.StatusCompleted:
		outcome = domain.OutcomeCompleted
	case ledgerdomain.StatusFailed, ledgerdomain.StatusCancelled:
		outcome = domain.OutcomeFailed
	}
	return &domain.VerifyResult{Outcome: outcome, Attempt: attempt}, nil
}

func sameOutcome(status ledgerdomain.AttemptStatus, outcome domain.Outcome) bool {
	if outcome == domain.OutcomeCompleted {
		return status == ledgerdomain.StatusCompleted
	}
	return status == ledgerdomain.StatusFailed || status == ledgerdomain.StatusCancelled
}
