package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/billflow/billflow/internal/scheduler"
	"github.com/billflow/billflow/internal/server"
)

func main() {
	app := fx.New(
		fx.Provide(RegisterSnowflake),

		// server.Module pulls in config, db, migration, and every domain
		// module; scheduler.Module adds the periodic billing jobs so the
		// monolith runs both surfaces.
		server.Module,
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
