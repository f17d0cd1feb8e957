package database

import (
	"context"
	"testing"
	"time"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		LogLevel:        "silent",
	}

	db, err := New(cfg, nil, &Options{PrepareStmt: false})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_SQLite(t *testing.T) {
	db := setupTestDB(t)

	assert.NoError(t, db.Ping(context.Background()))
	assert.Equal(t, "sqlite", db.Driver())
}

func TestNew_InvalidDriver(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: "invalid", DSN: ":memory:"}

	db, err := New(cfg, nil, nil)
	assert.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestMigrate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx))

	// schema exists
	assert.True(t, db.Migrator().HasTable(&models.VideoRun{}))
	assert.True(t, db.Migrator().HasTable(&models.Segment{}))
	assert.True(t, db.Migrator().HasTable(&models.ProcessingLock{}))

	// lock row seeded exactly once
	var count int64
	require.NoError(t, db.Model(&models.ProcessingLock{}).
		Where("key = ?", models.DefaultLockKey).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// idempotent
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Model(&models.ProcessingLock{}).
		Where("key = ?", models.DefaultLockKey).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Contains(t, stats, "open_connections")
}
