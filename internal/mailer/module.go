package mailer

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/userauth/internal/config"
	"github.com/elskow/userauth/internal/metrics"
)

func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(config *config.AppConfig, logger *zap.Logger) (Sender, error) {
					if !config.Mail.Enabled {
						logger.Warn("mail delivery disabled, emails will be logged")
						return NewLogSender(logger), nil
					}
					return NewSMTPSender(&config.Mail)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig) *Renderer {
					return NewRenderer(config.Mail.Domain)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig, sender Sender, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
					return NewDispatcher(&config.Mail, sender, logger, m)
				},
			),
			NewNotifier,
			NewHandler,
		),
		fx.Invoke(registerHooks),
	)
}

func registerHooks(
	lifecycle fx.Lifecycle,
	dispatcher *Dispatcher,
	logger *zap.Logger,
) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			dispatcher.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("draining mail queue...")
			return dispatcher.Stop(ctx)
		},
	})
}
