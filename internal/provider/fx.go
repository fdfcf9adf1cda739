package provider

import (
	"github.com/taskora-dev/taskora/internal/provider/repository"
	"github.com/taskora-dev/taskora/internal/provider/service"
	"go.uber.org/fx"
)

var Module = fx.Module("provider.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
