package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/taskora-dev/taskora/internal/clock"
	"github.com/taskora-dev/taskora/internal/provider/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("provider.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Register creates the provider record. Free registrations get the trial
// window immediately; paid registrations start on free and are upgraded by
// the settlement flow once the first payment completes.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Provider, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" {
		return nil, domain.ErrValidation
	}
	if _, err := domain.ParseTier(string(req.Tier)); err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx)
	trialEnd := now.AddDate(0, 0, domain.FreeTrialDays)

	provider := &domain.Provider{
		ID:        s.genID.Generate(),
		Name:      name,
		Email:     email,
		Tier:      domain.TierFree,
		ExpiresAt: &trialEnd,
		StartedAt: &now,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, provider); err != nil {
		return nil, err
	}

	s.log.Info("provider registered",
		zap.String("provider_id", provider.ID.String()),
		zap.String("requested_tier", string(req.Tier)))
	return provider, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Provider, error) {
	provider, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, domain.ErrProviderNotFound
	}
	return provider, nil
}

func (s *Service) SetAutoRenew(ctx context.Context, id snowflake.ID, enabled bool) error {
	return s.repo.UpdateAutoRenew(ctx, s.db, id, enabled, s.clock.Now(ctx))
}

func (s *Service) Lock(ctx context.Context, id snowflake.ID, until *time.Time, reason string) error {
	return s.updateModeration(ctx, id, func(p *domain.Provider) {
		p.IsLocked = true
		p.LockedUntil = until
		if reason != "" {
			p.StatusReason = &reason
		}
	})
}

func (s *Service) Unlock(ctx context.Context, id snowflake.ID) error {
	return s.updateModeration(ctx, id, func(p *domain.Provider) {
		p.IsLocked = false
		p.LockedUntil = nil
		p.StatusReason = nil
	})
}

func (s *Service) Hide(ctx context.Context, id snowflake.ID, reason string) error {
	return s.updateModeration(ctx, id, func(p *domain.Provider) {
		p.IsHidden = true
		if reason != "" {
			p.StatusReason = &reason
		}
	})
}

func (s *Service) Show(ctx context.Context, id snowflake.ID) error {
	return s.updateModeration(ctx, id, func(p *domain.Provider) {
		p.IsHidden = false
	})
}

// updateModeration only touches the moderation overlay. Tier and expiry are
// owned by the settlement and scheduler write paths and stay untouched here.
func (s *Service) updateModeration(ctx context.Context, id snowflake.ID, mutate func(*domain.Provider)) error {
	provider, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if provider == nil {
		return domain.ErrProviderNotFound
	}

	mutate(provider)
	provider.UpdatedAt = s.clock.Now(ctx)
	return s.repo.UpdateModeration(ctx, s.db, provider)
}
