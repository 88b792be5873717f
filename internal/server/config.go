package server

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/elskow/userauth/internal/config"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

const envPrefix = "USERAUTH"

// legacyEnv binds the environment variable names the first deployment used.
var legacyEnv = map[string]string{
	"auth.jwt_secret":         "TOKEN_SECRET",
	"database.mongo.uri":      "MONGO_URI",
	"database.mongo.database": "MONGO_DB",
	"mail.username":           "MAILTRAP_USERNAME",
	"mail.password":           "MAILTRAP_PASSWORD",
	"mail.domain":             "DOMAIN",
	"server.port":             "PORT",
}

func LoadConfig() (*config.AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}
	return loadConfig("./config/server", ".")
}

func loadConfig(paths ...string) (*config.AppConfig, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = EnvDevelopment
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)
	v.Set("env", env)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range legacyEnv {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), name); err != nil {
			return nil, fmt.Errorf("error binding env %s: %w", name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Environment-specific overrides, e.g. [auth.production].
	for _, section := range []string{"server", "auth", "mail"} {
		key := fmt.Sprintf("%s.%s", section, env)
		if len(v.GetStringMap(key)) == 0 {
			continue
		}
		var target any
		switch section {
		case "server":
			target = &cfg.Server
		case "auth":
			target = &cfg.Auth
		case "mail":
			target = &cfg.Mail
		}
		if err := v.UnmarshalKey(key, target); err != nil {
			return nil, fmt.Errorf("error unmarshaling env config: %w", err)
		}
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.static_dir", "./static")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_expiration", 24*time.Hour)
	v.SetDefault("auth.cookie_name", "token")
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.verify_token_ttl", time.Hour)
	v.SetDefault("auth.reset_token_ttl", time.Hour)

	v.SetDefault("database.driver", "mongo")
	v.SetDefault("database.timeout", 5*time.Second)
	v.SetDefault("database.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("database.mongo.database", "userauth")
	v.SetDefault("database.mongo.collection", "users")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.name", "userauth")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.host", "sandbox.smtp.mailtrap.io")
	v.SetDefault("mail.port", 2525)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "no-reply@userauth.local")
	v.SetDefault("mail.domain", "http://localhost:3000")
	v.SetDefault("mail.workers", 2)
	v.SetDefault("mail.queue_size", 128)
	v.SetDefault("mail.max_retries", 3)
	v.SetDefault("mail.retry_delay", 500*time.Millisecond)
	v.SetDefault("mail.send_timeout", 10*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func validateConfig(cfg *config.AppConfig) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required (set TOKEN_SECRET)")
	}
	if cfg.Env == EnvProduction && len(cfg.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 bytes in production")
	}
	if cfg.Auth.TokenExpiration <= 0 {
		return errors.New("auth.token_expiration must be positive")
	}
	if cfg.Database.Timeout <= 0 {
		return errors.New("database.timeout must be positive")
	}
	switch cfg.Database.Driver {
	case "mongo", "postgres", "memory":
	default:
		return fmt.Errorf("unsupported database.driver %q", cfg.Database.Driver)
	}
	if cfg.Mail.Workers < 1 {
		cfg.Mail.Workers = 1
	}
	return nil
}
