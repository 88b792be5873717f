package database

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/userauth/internal/config"
)

func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(lc fx.Lifecycle, config *config.AppConfig, logger *zap.Logger) (*Manager, error) {
					manager, err := Connect(context.Background(), &config.Database, logger)
					if err != nil {
						return nil, err
					}
					registerHooks(lc, manager, logger)
					return manager, nil
				},
			),
		),
	)
}

func registerHooks(
	lifecycle fx.Lifecycle,
	manager *Manager,
	logger *zap.Logger,
) {
	lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("Closing database connections", zap.String("driver", manager.Driver()))
			return manager.Close(ctx)
		},
	})
}
