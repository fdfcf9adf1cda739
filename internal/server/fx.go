package server

import (
	"github.com/taskora-dev/taskora/internal/gateway"
	"github.com/taskora-dev/taskora/internal/ledger"
	"github.com/taskora-dev/taskora/internal/notification"
	"github.com/taskora-dev/taskora/internal/provider"
	"github.com/taskora-dev/taskora/internal/settlement"
	"go.uber.org/fx"
)

// DomainModules bundles the business-logic modules for entrypoints that do
// not serve HTTP (the standalone scheduler).
var DomainModules = fx.Options(
	gateway.Module,
	provider.Module,
	ledger.Module,
	notification.Module,
	settlement.Module,
)

var Module = fx.Module("server",
	DomainModules,

	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(RunHTTP),
)
