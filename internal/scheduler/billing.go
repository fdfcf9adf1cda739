package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/taskora-dev/taskora/internal/ledger/domain"
	notificationdomain "github.com/taskora-dev/taskora/internal/notification/domain"
	providerdomain "github.com/taskora-dev/taskora/internal/provider/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RunBillingBatch executes the daily billing work in a fixed order: expire
// lapsed subscriptions first, then kick off renewals, then cancel stale
// checkouts. Renewal candidates may therefore already sit on the free tier
// when their renewal is initiated; settlement re-activates them on payment.
func (s *Scheduler) RunBillingBatch(ctx context.Context, now time.Time) error {
	if err := s.sweepExpired(ctx, now); err != nil {
		return err
	}
	if err := s.sweepRenewals(ctx, now); err != nil {
		return err
	}
	return s.sweepStalePending(ctx, now)
}

func (s *Scheduler) sweepExpired(ctx context.Context, now time.Time) error {
	providers, err := s.providerRepo.ListExpired(ctx, s.db, now)
	if err != nil {
		return err
	}

	downgraded := 0
	for _, p := range providers {
		if err := s.expireOne(ctx, p.ID, now); err != nil {
			s.metrics.SweepErrorsTotal.WithLabelValues("expiry").Inc()
			s.log.Error("expire provider",
				zap.String("provider_id", p.ID.String()),
				zap.Error(err))
			continue
		}
		downgraded++

		s.notifier.Notify(ctx, notificationdomain.KindExpired, p.ID, map[string]any{
			"dedup_key": now.Format("2006-01-02"),
			"tier":      string(p.Tier),
		})
	}

	s.log.Info("expiry sweep done",
		zap.Int("candidates", len(providers)),
		zap.Int("downgraded", downgraded))
	return nil
}

// expireOne re-checks the expiry under a row lock: a settlement may have
// extended the subscription between the list query and this write.
// expires_at is deliberately left in place so the renewal sweep can still
// find the provider.
func (s *Scheduler) expireOne(ctx context.Context, id snowflake.ID, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.providerRepo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if p == nil || p.Tier == providerdomain.TierFree {
			return nil
		}
		if p.ExpiresAt == nil || p.ExpiresAt.After(now) {
			return nil
		}

		p.Tier = providerdomain.TierFree
		p.UpdatedAt = now
		return s.providerRepo.UpdateSubscription(ctx, tx, p)
	})
}

func (s *Scheduler) sweepRenewals(ctx context.Context, now time.Time) error {
	providers, err := s.providerRepo.ListAutoRenewDue(ctx, s.db, now)
	if err != nil {
		return err
	}

	initiated := 0
	for _, p := range providers {
		tier, err := s.renewalTier(ctx, &p)
		if err != nil {
			s.metrics.SweepErrorsTotal.WithLabelValues("renewal").Inc()
			s.log.Error("resolve renewal tier",
				zap.String("provider_id", p.ID.String()),
				zap.Error(err))
			continue
		}
		if !tier.Paid() {
			s.log.Warn("auto-renew set but no paid tier on record, skipping",
				zap.String("provider_id", p.ID.String()))
			continue
		}

		if _, err := s.settlementSvc.Initiate(ctx, p.ID, tier, 1); err != nil {
			if errors.Is(err, ledgerdomain.ErrPendingAttemptExists) {
				continue
			}
			s.metrics.SweepErrorsTotal.WithLabelValues("renewal").Inc()
			s.log.Error("initiate renewal",
				zap.String("provider_id", p.ID.String()),
				zap.Error(err))
			s.notifier.Notify(ctx, notificationdomain.KindRenewalFailure, p.ID, map[string]any{
				"dedup_key": now.Format("2006-01-02"),
				"tier":      string(tier),
			})
			continue
		}
		initiated++
	}

	s.log.Info("renewal sweep done",
		zap.Int("candidates", len(providers)),
		zap.Int("initiated", initiated))
	return nil
}

// renewalTier resolves what tier to renew at. The expiry sweep may already
// have moved the provider to free, so a free tier falls back to the last
// tier the provider actually paid for.
func (s *Scheduler) renewalTier(ctx context.Context, p *providerdomain.Provider) (providerdomain.Tier, error) {
	if p.Tier.Paid() {
		return p.Tier, nil
	}
	return s.ledgerRepo.LastCompletedTier(ctx, s.db, p.ID)
}

func (s *Scheduler) sweepStalePending(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.cfg.PendingTTL)
	cancelled, err := s.ledgerRepo.CancelStaleOlderThan(ctx, s.db, cutoff, now)
	if err != nil {
		return err
	}
	if cancelled > 0 {
		s.log.Info("cancelled stale pending attempts", zap.Int64("count", cancelled))
	}
	return nil
}
