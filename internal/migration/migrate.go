package migration

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/elskow/userauth/internal/config"
	"github.com/elskow/userauth/migrations"
)

// embeddedDir is the root of migrations.FS.
const embeddedDir = "."

// Migrator applies the SQL migrations that own the PostgreSQL users schema.
type Migrator struct {
	db    *sql.DB
	owned bool
}

// NewMigrator opens its own connection. Close releases it.
func NewMigrator(config *config.PostgresConfig) (*Migrator, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Migrator{
		db:    db,
		owned: true,
	}, nil
}

// NewMigratorFromDB runs migrations over an existing pool. Close leaves the
// pool open.
func NewMigratorFromDB(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

func (m *Migrator) prepare() (string, error) {
	if err := goose.SetDialect("postgres"); err != nil {
		return "", fmt.Errorf("failed to set dialect: %w", err)
	}
	goose.SetBaseFS(migrations.FS)
	return embeddedDir, nil
}

func (m *Migrator) Up() error {
	migrationsDir, err := m.prepare()
	if err != nil {
		return err
	}

	if err := goose.Up(m.db, migrationsDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (m *Migrator) Down() error {
	migrationsDir, err := m.prepare()
	if err != nil {
		return err
	}

	if err := goose.Down(m.db, migrationsDir); err != nil {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}
	return nil
}

func (m *Migrator) Close() error {
	if !m.owned {
		return nil
	}
	return m.db.Close()
}

// GetCurrentVersion returns the current migration version
func (m *Migrator) GetCurrentVersion() (int64, error) {
	return goose.GetDBVersion(m.db)
}

// GetLatestVersion returns the latest available migration version
func (m *Migrator) GetLatestVersion() (int64, error) {
	migrationsDir, err := m.prepare()
	if err != nil {
		return 0, err
	}

	collected, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	if err != nil {
		return 0, err
	}

	if len(collected) == 0 {
		return 0, nil
	}

	return collected[len(collected)-1].Version, nil
}

// DownTo migrates the database down to a specific version
func (m *Migrator) DownTo(version int64) error {
	migrationsDir, err := m.prepare()
	if err != nil {
		return err
	}

	if err := goose.DownTo(m.db, migrationsDir, version); err != nil {
		return fmt.Errorf("failed to migrate down to version %d: %w", version, err)
	}
	return nil
}

func (m *Migrator) Status() error {
	migrationsDir, err := m.prepare()
	if err != nil {
		return err
	}

	if err := goose.Status(m.db, migrationsDir); err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	return nil
}

func (m *Migrator) Reset() error {
	if err := m.Down(); err != nil {
		return err
	}
	return m.Up()
}

// Create writes a new timestamped SQL migration into the source tree's
// migrations directory. It needs a checkout; the embedded copy is read-only.
func Create(name string) (string, error) {
	dir, err := sourceMigrationsDir()
	if err != nil {
		return "", fmt.Errorf("failed to get migrations directory: %w", err)
	}

	goose.SetBaseFS(nil)
	if err := goose.Create(nil, dir, name, "sql"); err != nil {
		return "", fmt.Errorf("failed to create migration %q: %w", name, err)
	}
	return dir, nil
}
