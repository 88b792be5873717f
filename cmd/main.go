package main

import (
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/elskow/userauth/internal/app"
	"github.com/elskow/userauth/internal/server"
)

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = server.EnvDevelopment
		os.Setenv("APP_ENV", env)
	}

	logger, err := server.NewLogger(env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	userauth := fx.New(
		fx.Supply(logger),
		app.Module(),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	if err := userauth.Err(); err != nil {
		logger.Fatal("failed to build application", zap.String("env", env), zap.Error(err))
	}

	userauth.Run()
}
