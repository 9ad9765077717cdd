package config

import "go.uber.org/fx"

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewSyncConfigHolder),
	fx.Provide(func(h *SyncConfigHolder) LimitsSource { return h }),
)
