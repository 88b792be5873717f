package auth

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/userauth/internal/config"
	"github.com/elskow/userauth/internal/database"
)

// NewModule returns the auth module options. It expects an EmailSender and
// an EventRecorder to be provided by the application.
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			// Provide repository for the configured driver
			fx.Annotate(
				func(config *config.AppConfig, db *database.Manager, log *zap.Logger) (Repository, error) {
					return newRepository(config, db, log)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig) *CookieJar {
					return NewCookieJar(&config.Auth)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig, log *zap.Logger, repo Repository, mailer EmailSender, events EventRecorder) *Service {
					return NewService(&config.Auth, log, repo, mailer, WithEventRecorder(events))
				},
			),
			fx.Annotate(
				func(svc *Service, cookies *CookieJar) *AuthMiddleware {
					return NewAuthMiddleware(svc, cookies)
				},
			),
			fx.Annotate(
				func(svc *Service, cookies *CookieJar, mw *AuthMiddleware, log *zap.Logger) *Handler {
					return NewHandler(svc, cookies, mw, log)
				},
			),
			fx.Annotate(
				func(cookies *CookieJar) *RouteGuard {
					return NewRouteGuard(cookies)
				},
			),
		),
	)
}

func newRepository(config *config.AppConfig, db *database.Manager, log *zap.Logger) (Repository, error) {
	timeout := config.Database.Timeout
	log.Info("initializing user repository", zap.String("driver", db.Driver()))

	switch db.Driver() {
	case database.DriverMongo:
		coll := db.Mongo().Collection(config.Database.Mongo.Collection)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := EnsureMongoIndexes(ctx, coll); err != nil {
			return nil, fmt.Errorf("failed to create user indexes: %w", err)
		}
		return NewMongoRepository(coll, timeout), nil
	case database.DriverPostgres:
		return NewGormRepository(db.DB(), timeout), nil
	case database.DriverMemory:
		return NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", db.Driver())
	}
}
