package object

import (
	"github.com/billflow/billflow/internal/object/service"
	"go.uber.org/fx"
)

var Module = fx.Module("object.service",
	fx.Provide(service.NewService),
)
