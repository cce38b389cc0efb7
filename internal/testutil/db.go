// Package testutil provides test helpers shared across packages.
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/NicolasFerec/ferelix-server/internal/models"
)

// NewTestDB opens an in-memory SQLite database with the full schema migrated.
// Each call returns an isolated database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
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
	require.NoError(t, err)

	return db
}

// MakeLibrary creates and persists a library rooted at path.
func MakeLibrary(t *testing.T, db *gorm.DB, name, path string) *models.Library {
	t.Helper()

	lib := &models.Library{
		Name:    name,
		Path:    path,
		Type:    models.LibraryTypeMovies,
		Enabled: models.BoolPtr(true),
	}
	require.NoError(t, db.Create(lib).Error)
	return lib
}

// MakeMediaFile creates and persists a media file with one h264 video track
// and one aac audio track, which is the common fixture for playback tests.
func MakeMediaFile(t *testing.T, db *gorm.DB, path string, duration float64) *models.MediaFile {
	t.Helper()

	now := models.Now()
	width, height := 1920, 1080
	channels := 2
	file := &models.MediaFile{
		FilePath:      path,
		FileName:      base(path),
		FileSize:      1 << 20,
		FileExtension: ext(path),
		Duration:      &duration,
		ScannedAt:     &now,
		VideoTracks: []models.VideoTrack{
			{StreamIndex: 0, Codec: "h264", Width: &width, Height: &height},
		},
		AudioTracks: []models.AudioTrack{
			{StreamIndex: 1, Codec: "aac", Channels: &channels, IsDefault: true},
		},
	}
	require.NoError(t, db.Create(file).Error)
	return file
}

func base(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func ext(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}
