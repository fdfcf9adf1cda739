package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Provider, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Provider, error)
	SetAutoRenew(ctx context.Context, id snowflake.ID, enabled bool) error

	Lock(ctx context.Context, id snowflake.ID, until *time.Time, reason string) error
	Unlock(ctx context.Context, id snowflake.ID) error
	Hide(ctx context.Context, id snowflake.ID, reason string) error
	Show(ctx context.Context, id snowflake.ID) error
}

type RegisterRequest struct {
	Name  string
	Email string
	Tier  Tier
}
