package storefront

import "go.uber.org/fx"

var Module = fx.Module("storefront",
	fx.Provide(New),
)
