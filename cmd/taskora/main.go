package main

import (
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
	"github.com/taskora-dev/taskora/internal/clock"
	"github.com/taskora-dev/taskora/internal/config"
	"github.com/taskora-dev/taskora/internal/migration"
	"github.com/taskora-dev/taskora/internal/observability"
	"github.com/taskora-dev/taskora/internal/scheduler"
	"github.com/taskora-dev/taskora/internal/server"
	"github.com/taskora-dev/taskora/pkg/db"
	"github.com/taskora-dev/taskora/pkg/redis"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

func main() {
	root := &cobra.Command{
		Use:   "taskora",
		Short: "Subscription lifecycle and payment settlement engine",
	}

	root.AddCommand(
		migrateCmd(),
		serveCmd(),
		schedulerCmd(),
		allCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// baseModules is the infrastructure every subcommand needs.
func baseModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		redis.Module,
		// fx.Provide is lazy; force the tracer provider to initialize.
		fx.Invoke(func(*sdktrace.TracerProvider) {}),
	)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(*cobra.Command, []string) error {
			app := fx.New(
				baseModules(),
				migration.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Run: func(*cobra.Command, []string) {
			fx.New(
				baseModules(),
				migration.Module,
				server.Module,
			).Run()
		},
	}
}

func schedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the lifecycle sweeps only",
		Run: func(*cobra.Command, []string) {
			fx.New(
				baseModules(),
				migration.Module,
				server.DomainModules,
				scheduler.Module,
				fx.Invoke(scheduler.Run),
			).Run()
		},
	}
}

func allCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run the HTTP API and the scheduler in one process",
		Run: func(*cobra.Command, []string) {
			fx.New(
				baseModules(),
				migration.Module,
				server.Module,
				scheduler.Module,
				fx.Invoke(scheduler.Run),
			).Run()
		},
	}
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
