package main

import (
	"flag"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/elskow/userauth/internal/database"
	"github.com/elskow/userauth/internal/migration"
	"github.com/elskow/userauth/internal/server"
)

func main() {
	command := flag.String("command", "up", "migration command (up/down/status/version/reset/create)")
	name := flag.String("name", "", "migration name for create")
	flag.Parse()

	if *command == "create" {
		if *name == "" {
			log.Fatalf("create needs -name")
		}
		dir, err := migration.Create(*name)
		if err != nil {
			log.Fatalf("Failed to create migration: %v", err)
		}
		log.Printf("Created migration %s in %s", *name, dir)
		return
	}

	if os.Getenv("APP_ENV") == "" {
		os.Setenv("APP_ENV", "development")
	}

	// Load config
	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Driver != database.DriverPostgres {
		log.Fatalf("Migrations only apply to the postgres driver, configured driver is %q", cfg.Database.Driver)
	}

	// Create migrator
	migrator, err := migration.NewMigrator(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}
	defer migrator.Close()

	// Run migration command
	switch *command {
	case "up":
		if err := migrator.Up(); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Successfully ran migrations")

	case "down":
		if err := migrator.Down(); err != nil {
			log.Fatalf("Failed to rollback migrations: %v", err)
		}
		log.Println("Successfully rolled back migrations")

	case "status":
		if err := migrator.Status(); err != nil {
			log.Fatalf("Failed to get migration status: %v", err)
		}

	case "version":
		version, err := migrator.GetCurrentVersion()
		if err != nil {
			log.Fatalf("Failed to get migration version: %v", err)
		}
		log.Printf("Current migration version: %d", version)

	case "reset":
		if err := migrator.Reset(); err != nil {
			log.Fatalf("Failed to reset migrations: %v", err)
		}
		log.Println("Successfully reset migrations")

	default:
		log.Fatalf("Unknown command: %s", *command)
	}
}
