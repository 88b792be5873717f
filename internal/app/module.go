package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/userauth/internal/auth"
	"github.com/elskow/userauth/internal/database"
	"github.com/elskow/userauth/internal/mailer"
	"github.com/elskow/userauth/internal/metrics"
	"github.com/elskow/userauth/internal/migration"
	"github.com/elskow/userauth/internal/server"
)

// Module combines all application modules. The caller supplies the
// *zap.Logger.
func Module() fx.Option {
	return fx.Options(
		// Configuration
		fx.Provide(server.LoadConfig),

		// Metrics
		metrics.Module(),

		// Storage
		database.Module(),
		migration.Module(),

		// Mail
		mailer.Module(),

		// Auth Module
		fx.Provide(
			func(n *mailer.Notifier) auth.EmailSender { return n },
			func(m *metrics.Metrics) auth.EventRecorder { return m },
		),
		auth.NewModule(),

		// Server
		fx.Provide(server.NewServer),

		// Start the server
		fx.Invoke(registerHooks),
	)
}

func registerHooks(
	lifecycle fx.Lifecycle,
	shutdowner fx.Shutdowner,
	srv *server.Server,
	log *zap.Logger,
) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("failed to start server", zap.Error(err))
					shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down server...")
			return srv.Stop(ctx)
		},
	})
}
