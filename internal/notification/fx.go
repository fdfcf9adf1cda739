package notification

import (
	"github.com/taskora-dev/taskora/internal/notification/repository"
	"github.com/taskora-dev/taskora/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewNotifier),
)
