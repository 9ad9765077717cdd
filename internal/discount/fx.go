package discount

import (
	"github.com/smallbiznis/promosync/internal/discount/repository"
	"github.com/smallbiznis/promosync/internal/discount/service"
	"github.com/smallbiznis/promosync/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("discount.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(l ratelimit.Lock) service.Locker { return l }),
	fx.Provide(service.New),
)
