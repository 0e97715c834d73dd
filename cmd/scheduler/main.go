package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/billflow/billflow/internal/billing"
	"github.com/billflow/billflow/internal/clock"
	"github.com/billflow/billflow/internal/config"
	"github.com/billflow/billflow/internal/dashboard"
	"github.com/billflow/billflow/internal/logger"
	"github.com/billflow/billflow/internal/migration"
	"github.com/billflow/billflow/internal/object"
	"github.com/billflow/billflow/internal/objectstore"
	"github.com/billflow/billflow/internal/providers/email"
	"github.com/billflow/billflow/internal/scheduler"
	"github.com/billflow/billflow/internal/usage"
	"github.com/billflow/billflow/internal/user"
	"github.com/billflow/billflow/pkg/db"
)

// Standalone job runner: the same periodic jobs as the monolith, without the
// HTTP surface.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		user.Module,
		usage.Module,
		billing.Module,
		objectstore.Module,
		object.Module,
		email.Module,
		dashboard.Module,

		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
