package migrations

import (
	"gorm.io/gorm"

	"github.com/NicolasFerec/ferelix-server/internal/models"
)

// AllMigrations returns all registered migrations in order.
// - 001: Schema creation using GORM AutoMigrate
// - 002: Seed the settings singleton row
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002DefaultSettings(),
	}
}

// migration001Schema creates all database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create all database tables",
		Up: func(tx *gorm.DB) error {
			// AutoMigrate all models in dependency order
			return tx.AutoMigrate(
				&models.Library{},
				&models.MediaFile{},
				&models.VideoTrack{},
				&models.AudioTrack{},
				&models.SubtitleTrack{},

				&models.RecommendationRow{},
				&models.TranscodingJob{},

				&models.User{},
				&models.Settings{},
			)
		},
		Down: func(tx *gorm.DB) error {
			// Drop tables in reverse dependency order
			tables := []string{
				"settings",
				"users",
				"transcoding_jobs",
				"recommendation_rows",
				"subtitle_tracks",
				"audio_tracks",
				"video_tracks",
				"media_files",
				"libraries",
			}
			for _, table := range tables {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

// migration002DefaultSettings seeds the settings singleton (ID 1) so the
// scheduler always has a row to read on first start.
func migration002DefaultSettings() Migration {
	return Migration{
		Version:     "002",
		Description: "Seed default settings",
		Up: func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&models.Settings{}).Where("id = ?", 1).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return nil
			}
			return tx.Create(models.DefaultSettings()).Error
		},
		Down: func(tx *gorm.DB) error {
			return tx.Where("id = ?", 1).Delete(&models.Settings{}).Error
		},
	}
}
