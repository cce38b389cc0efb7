// Package repository defines data access interfaces for ferelix entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/NicolasFerec/ferelix-server/internal/models"
)

// LibraryRepository defines operations for library persistence.
type LibraryRepository interface {
	// Create creates a new library.
	Create(ctx context.Context, library *models.Library) error
	// GetByID retrieves a library by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Library, error)
	// GetByPath retrieves a library by root path.
	GetByPath(ctx context.Context, path string) (*models.Library, error)
	// GetAll retrieves all libraries.
	GetAll(ctx context.Context) ([]*models.Library, error)
	// GetEnabled retrieves all enabled libraries.
	GetEnabled(ctx context.Context) ([]*models.Library, error)
	// Update updates an existing library.
	Update(ctx context.Context, library *models.Library) error
	// Delete deletes a library by ID. MediaFiles are not cascaded; the
	// scanner owns media file lifecycle.
	Delete(ctx context.Context, id models.ULID) error
}

// MediaFileRepository defines operations for media file persistence.
type MediaFileRepository interface {
	// Create creates a media file together with its tracks.
	Create(ctx context.Context, file *models.MediaFile) error
	// CreateBatch inserts media files and their tracks in one transaction.
	CreateBatch(ctx context.Context, files []*models.MediaFile) error
	// GetByID retrieves a media file with its tracks preloaded.
	GetByID(ctx context.Context, id models.ULID) (*models.MediaFile, error)
	// GetByPath retrieves a media file by its absolute path, including
	// soft-deleted rows. Returns nil when no row exists.
	GetByPath(ctx context.Context, path string) (*models.MediaFile, error)
	// ListActiveUnderPath retrieves non-deleted media files whose path is
	// under the given root, with pagination.
	ListActiveUnderPath(ctx context.Context, root string, offset, limit int) ([]*models.MediaFile, int64, error)
	// ActivePathsUnder returns the paths of all non-deleted media files
	// under the given root.
	ActivePathsUnder(ctx context.Context, root string) ([]string, error)
	// Update updates the media file row (not its tracks).
	Update(ctx context.Context, file *models.MediaFile) error
	// ReplaceTracks atomically deletes and recreates all tracks of a file.
	ReplaceTracks(ctx context.Context, fileID models.ULID, video []models.VideoTrack, audio []models.AudioTrack, subtitle []models.SubtitleTrack) error
	// SoftDelete marks the file as deleted at the given time.
	SoftDelete(ctx context.Context, id models.ULID, at time.Time) error
	// Restore clears the soft-delete mark.
	Restore(ctx context.Context, id models.ULID) error
	// DeleteSoftDeletedBefore permanently removes files soft-deleted before
	// the cutoff, cascading their tracks. Returns the number removed.
	DeleteSoftDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TranscodingJobRepository defines operations for transcoding job persistence.
type TranscodingJobRepository interface {
	// Create creates a new transcoding job.
	Create(ctx context.Context, job *models.TranscodingJob) error
	// GetByID retrieves a transcoding job by ID. Returns nil when absent.
	GetByID(ctx context.Context, id string) (*models.TranscodingJob, error)
	// Update saves the full job row.
	Update(ctx context.Context, job *models.TranscodingJob) error
	// UpdateProgress persists progress columns without touching the rest.
	UpdateProgress(ctx context.Context, id string, percent, transcoded, fps float64, bitrate int64) error
	// Delete removes a job row.
	Delete(ctx context.Context, id string) error
	// GetAllWithOutput retrieves every job that has an output directory.
	GetAllWithOutput(ctx context.Context) ([]*models.TranscodingJob, error)
	// GetStale retrieves terminal or pending jobs whose last access is older
	// than the cutoff.
	GetStale(ctx context.Context, cutoff time.Time) ([]*models.TranscodingJob, error)
}

// RecommendationRowRepository defines operations for recommendation rows.
type RecommendationRowRepository interface {
	// Create creates a new recommendation row.
	Create(ctx context.Context, row *models.RecommendationRow) error
	// GetByID retrieves a row by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.RecommendationRow, error)
	// GetByLibrary retrieves rows for a library ordered by sort order.
	GetByLibrary(ctx context.Context, libraryID models.ULID) ([]*models.RecommendationRow, error)
	// Update updates an existing row.
	Update(ctx context.Context, row *models.RecommendationRow) error
	// Delete deletes a row by ID.
	Delete(ctx context.Context, id models.ULID) error
}

// UserRepository defines operations for user persistence.
type UserRepository interface {
	// Create creates a new user.
	Create(ctx context.Context, user *models.User) error
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.User, error)
	// GetByUsername retrieves a user by username. Returns nil when absent.
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// GetAll retrieves all users.
	GetAll(ctx context.Context) ([]*models.User, error)
	// Count returns the number of users.
	Count(ctx context.Context) (int64, error)
	// Update updates an existing user.
	Update(ctx context.Context, user *models.User) error
	// Delete deletes a user by ID.
	Delete(ctx context.Context, id models.ULID) error
}

// SettingsRepository defines operations for the settings singleton.
type SettingsRepository interface {
	// GetOrCreate returns the singleton row, creating it with defaults if
	// it does not exist yet.
	GetOrCreate(ctx context.Context) (*models.Settings, error)
	// Update saves the singleton row.
	Update(ctx context.Context, settings *models.Settings) error
}
