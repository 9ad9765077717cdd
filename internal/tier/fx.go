package tier

import (
	discountdomain "github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/tier/repository"
	"github.com/smallbiznis/promosync/internal/tier/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tier.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.NewGate),
	fx.Provide(func(g *service.Gate) discountdomain.TierGate { return g }),
)
