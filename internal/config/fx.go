package config

import "go.uber.org/fx"

// Module provides application configuration and the derived pricing schedule.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(func(cfg Config) PricingConfig { return cfg.Pricing }),
	fx.Provide(func(cfg Config) QuotaConfig { return cfg.Quota }),
)
