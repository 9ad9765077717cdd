package webhook

import (
	"github.com/smallbiznis/promosync/internal/webhook/kafka"
	"github.com/smallbiznis/promosync/internal/webhook/repository"
	"github.com/smallbiznis/promosync/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s *service.Service) kafka.Ingester { return s }),
	fx.Invoke(kafka.Register),
)
