package scheduler

import (
	"context"
	"fmt"
	"time"

	notificationdomain "github.com/taskora-dev/taskora/internal/notification/domain"
	"go.uber.org/zap"
)

var warningOffsets = []int{7, 3, 1}

// RunWarningSweep sends expiry warnings at fixed day offsets. Each offset
// uses a half-open day window so a subscription expiring at any time of its
// last day is caught exactly once per offset. Auto-renewing providers are
// warned too: the renewal can still fail, and the warning tells them a
// charge is coming.
func (s *Scheduler) RunWarningSweep(ctx context.Context, now time.Time) error {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	for _, offset := range warningOffsets {
		start := day.AddDate(0, 0, offset)
		end := start.AddDate(0, 0, 1)

		providers, err := s.providerRepo.ListByExpiryWindow(ctx, s.db, start, end)
		if err != nil {
			s.metrics.SweepErrorsTotal.WithLabelValues("warnings").Inc()
			s.log.Error("list expiry window",
				zap.Int("offset_days", offset),
				zap.Error(err))
			continue
		}

		for _, p := range providers {
			if p.ExpiresAt == nil {
				continue
			}

			// Keyed on the expiry date, not today: a subscription extended
			// and lapsing again later gets a fresh warning cycle.
			s.notifier.Notify(ctx, notificationdomain.KindExpiryWarning, p.ID, map[string]any{
				"dedup_key":  fmt.Sprintf("%s:d-%d", p.ExpiresAt.Format("2006-01-02"), offset),
				"tier":       string(p.Tier),
				"expires_at": p.ExpiresAt.Format(time.RFC3339),
				"days_left":  offset,
			})
		}

		s.log.Info("warning sweep window done",
			zap.Int("offset_days", offset),
			zap.Int("matched", len(providers)))
	}
	return nil
}
