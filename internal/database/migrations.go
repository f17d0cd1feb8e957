package database

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/reelforge/reelforge/internal/models"
	"gorm.io/gorm"
)

// Migration represents a single database migration.
type Migration struct {
	Version     string
	Description string
	Up          func(tx *gorm.DB) error
}

// MigrationRecord tracks applied migrations in the database.
type MigrationRecord struct {
	ID          uint      `gorm:"primarykey"`
	Version     string    `gorm:"uniqueIndex;not null"`
	Description string    `gorm:"not null"`
	AppliedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for migration records.
func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// AllMigrations returns all registered migrations in order.
func AllMigrations() []Migration {
	return []Migration{
		{
			Version:     "001",
			Description: "Create video run, segment, and processing lock tables",
			Up: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&models.VideoRun{},
					&models.Segment{},
					&models.ProcessingLock{},
				)
			},
		},
		{
			Version:     "002",
			Description: "Seed the video processing lock row",
			Up: func(tx *gorm.DB) error {
				var count int64
				if err := tx.Model(&models.ProcessingLock{}).
					Where("key = ?", models.DefaultLockKey).
					Count(&count).Error; err != nil {
					return err
				}
				if count > 0 {
					return nil
				}
				return tx.Create(&models.ProcessingLock{Key: models.DefaultLockKey}).Error
			},
		},
	}
}

// Migrate applies all pending migrations in version order.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.DB.WithContext(ctx).AutoMigrate(&MigrationRecord{}); err != nil {
		return fmt.Errorf("initializing migrations table: %w", err)
	}

	var records []MigrationRecord
	if err := db.DB.WithContext(ctx).Find(&records).Error; err != nil {
		return fmt.Errorf("getting applied migrations: %w", err)
	}
	applied := make(map[string]bool, len(records))
	for _, r := range records {
		applied[r.Version] = true
	}

	migrations := AllMigrations()
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		db.logger.InfoContext(ctx, "applying migration",
			slog.String("version", migration.Version),
			slog.String("description", migration.Description),
		)

		err := db.Transaction(ctx, func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return err
			}
			return tx.Create(&MigrationRecord{
				Version:     migration.Version,
				Description: migration.Description,
				AppliedAt:   time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("applying migration %s: %w", migration.Version, err)
		}
	}

	return nil
}
