package settlement

import (
	"github.com/taskora-dev/taskora/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement",
	fx.Provide(service.NewService),
)
