//go:build integration

package auth

import (
	"context"
	"io/fs"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	postgresdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/elskow/userauth/migrations"
)

// applyUpMigrations runs the goose Up sections of the embedded migrations.
func applyUpMigrations(t *testing.T, db *gorm.DB) {
	t.Helper()

	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	sort.Strings(files)

	for _, file := range files {
		content, err := fs.ReadFile(migrations.FS, file)
		require.NoError(t, err)

		up := strings.SplitN(string(content), "-- +goose Down", 2)[0]
		up = strings.Replace(up, "-- +goose Up", "", 1)
		require.NoError(t, db.Exec(up).Error, file)
	}
}

func setupPostgres(t *testing.T) Repository {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("userauth"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgresdriver.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	applyUpMigrations(t, db)

	return NewGormRepository(db, 5*time.Second)
}

func TestGormRepository_Integration(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := &User{UserName: "alice", Email: "alice@example.com", PasswordHash: "hash"}
	require.NoError(t, repo.CreateUser(ctx, user))
	assert.NotEmpty(t, user.ID)

	t.Run("unique username and email", func(t *testing.T) {
		err := repo.CreateUser(ctx, &User{UserName: "alice", Email: "other@example.com", PasswordHash: "hash"})
		assert.ErrorIs(t, err, ErrUserExists)

		err = repo.CreateUser(ctx, &User{UserName: "other", Email: "alice@example.com", PasswordHash: "hash"})
		assert.ErrorIs(t, err, ErrUserExists)
	})

	t.Run("lookups", func(t *testing.T) {
		byID, err := repo.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", byID.Email)

		byName, err := repo.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byName.ID)

		_, err = repo.GetUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrUserNotFound)

		_, err = repo.GetUserByID(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("verification token", func(t *testing.T) {
		require.NoError(t, repo.SetVerifyToken(ctx, user.ID, "verify-hash", now.Add(time.Hour)))

		found, err := repo.GetUserByVerifyToken(ctx, "verify-hash", now)
		require.NoError(t, err)
		assert.Equal(t, user.ID, found.ID)

		_, err = repo.GetUserByVerifyToken(ctx, "verify-hash", now.Add(2*time.Hour))
		assert.ErrorIs(t, err, ErrUserNotFound)

		require.NoError(t, repo.MarkEmailVerified(ctx, user.ID))
		verified, err := repo.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, verified.IsVerified)
		assert.Empty(t, verified.VerifyTokenHash)
		assert.Nil(t, verified.VerifyTokenExpiry)
	})

	t.Run("reset token", func(t *testing.T) {
		require.NoError(t, repo.SetResetToken(ctx, user.ID, "reset-hash", now.Add(time.Hour)))

		found, err := repo.GetUserByResetToken(ctx, "reset-hash", now)
		require.NoError(t, err)
		assert.Equal(t, user.ID, found.ID)

		require.NoError(t, repo.UpdatePassword(ctx, user.ID, "new-hash"))
		_, err = repo.GetUserByResetToken(ctx, "reset-hash", now)
		assert.ErrorIs(t, err, ErrUserNotFound)

		updated, err := repo.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", updated.PasswordHash)
	})

	t.Run("update missing user", func(t *testing.T) {
		err := repo.MarkEmailVerified(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}
