package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/taskora-dev/taskora/internal/clock"
	"github.com/taskora-dev/taskora/internal/config"
	ledgerdomain "github.com/taskora-dev/taskora/internal/ledger/domain"
	notificationdomain "github.com/taskora-dev/taskora/internal/notification/domain"
	"github.com/taskora-dev/taskora/internal/observability"
	providerdomain "github.com/taskora-dev/taskora/internal/provider/domain"
	settlementdomain "github.com/taskora-dev/taskora/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Scheduler drives the daily lifecycle sweeps: subscription expiry,
// auto-renewal, stale checkout cleanup and expiry warnings. Every sweep is
// idempotent, so running a day twice (crash, redeploy, overlapping
// instances) is safe even without the redis lease.
type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	cfg           config.SchedulerConfig
	redis         *redis.Client
	providerRepo  providerdomain.Repository
	ledgerRepo    ledgerdomain.Repository
	settlementSvc settlementdomain.Service
	notifier      notificationdomain.Notifier
	metrics       *observability.Metrics
}

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Config        config.Config
	Redis         *redis.Client `optional:"true"`
	ProviderRepo  providerdomain.Repository
	LedgerRepo    ledgerdomain.Repository
	SettlementSvc settlementdomain.Service
	Notifier      notificationdomain.Notifier
	Metrics       *observability.Metrics
}

func NewScheduler(p Params) *Scheduler {
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler"),
		clock:         p.Clock,
		cfg:           p.Config.Scheduler,
		redis:         p.Redis,
		providerRepo:  p.ProviderRepo,
		ledgerRepo:    p.LedgerRepo,
		settlementSvc: p.SettlementSvc,
		notifier:      p.Notifier,
		metrics:       p.Metrics,
	}
}

// RunForever ticks once a minute and fires each job during its configured
// hour. The per-day lease keeps the 60 in-hour ticks, and any sibling
// instances, from running a job twice.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	s.log.Info("scheduler started",
		zap.Int("billing_hour", s.cfg.BillingHour),
		zap.Int("notification_hour", s.cfg.NotificationHour))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs whichever jobs are due at the current clock reading.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now(ctx).UTC()

	if now.Hour() == s.cfg.BillingHour {
		s.runLeased(ctx, "billing", now, s.RunBillingBatch)
	}
	if now.Hour() == s.cfg.NotificationHour {
		s.runLeased(ctx, "warnings", now, s.RunWarningSweep)
	}
}

func (s *Scheduler) runLeased(ctx context.Context, job string, now time.Time, fn func(context.Context, time.Time) error) {
	if !s.acquireLease(ctx, job, now) {
		return
	}

	s.metrics.SweepRunsTotal.WithLabelValues(job).Inc()
	if err := fn(ctx, now); err != nil {
		s.log.Error("sweep failed", zap.String("job", job), zap.Error(err))
	}
}

// acquireLease claims the (job, date) slot. Without redis there is nothing
// to coordinate with, so the claim always succeeds and idempotence of the
// sweeps carries the load.
func (s *Scheduler) acquireLease(ctx context.Context, job string, now time.Time) bool {
	if s.redis == nil {
		return true
	}

	key := fmt.Sprintf("taskora:sweep:%s:%s", job, now.Format("2006-01-02"))
	ok, err := s.redis.SetNX(ctx, key, "1", s.cfg.LeaseTTL).Result()
	if err != nil {
		s.log.Warn("lease acquisition failed, running anyway",
			zap.String("job", job), zap.Error(err))
		return true
	}
	return ok
}
