package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/NicolasFerec/ferelix-server/internal/models"
)

// likeEscaper escapes LIKE wildcards so path characters match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// pathPrefixPattern builds a LIKE pattern matching only paths inside root.
// The trailing separator keeps a library at /media from matching a sibling
// at /media2; use with ESCAPE '\'.
func pathPrefixPattern(root string) string {
	sep := string(filepath.Separator)
	prefix := likeEscaper.Replace(strings.TrimSuffix(root, sep))
	return prefix + sep + "%"
}

// mediaFileRepo implements MediaFileRepository using GORM.
type mediaFileRepo struct {
	db *gorm.DB
}

// NewMediaFileRepository creates a new MediaFileRepository.
func NewMediaFileRepository(db *gorm.DB) *mediaFileRepo {
	return &mediaFileRepo{db: db}
}

// Create creates a media file together with its tracks.
func (r *mediaFileRepo) Create(ctx context.Context, file *models.MediaFile) error {
	if err := r.db.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("creating media file: %w", err)
	}
	return nil
}

// CreateBatch inserts media files and their tracks in a single transaction.
func (r *mediaFileRepo) CreateBatch(ctx context.Context, files []*models.MediaFile) error {
	if len(files) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(files).Error; err != nil {
		return fmt.Errorf("creating media file batch: %w", err)
	}
	return nil
}

// GetByID retrieves a media file with its tracks preloaded.
func (r *mediaFileRepo) GetByID(ctx context.Context, id models.ULID) (*models.MediaFile, error) {
	var file models.MediaFile
	err := r.db.WithContext(ctx).
		Preload("VideoTracks").
		Preload("AudioTracks").
		Preload("SubtitleTracks").
		Where("id = ?", id).
		First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting media file by ID: %w", err)
	}
	return &file, nil
}

// GetByPath retrieves a media file by absolute path, including soft-deleted rows.
func (r *mediaFileRepo) GetByPath(ctx context.Context, path string) (*models.MediaFile, error) {
	var file models.MediaFile
	err := r.db.WithContext(ctx).
		Preload("VideoTracks").
		Preload("AudioTracks").
		Preload("SubtitleTracks").
		Where("file_path = ?", path).
		First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting media file by path: %w", err)
	}
	return &file, nil
}

// ListActiveUnderPath retrieves non-deleted media files under a root path.
func (r *mediaFileRepo) ListActiveUnderPath(ctx context.Context, root string, offset, limit int) ([]*models.MediaFile, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.MediaFile{}).
		Where(`file_path LIKE ? ESCAPE '\'`, pathPrefixPattern(root)).
		Where("deleted_at IS NULL")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting media files: %w", err)
	}

	var files []*models.MediaFile
	err := query.
		Preload("VideoTracks").
		Preload("AudioTracks").
		Preload("SubtitleTracks").
		Order("file_name ASC").
		Offset(offset).Limit(limit).
		Find(&files).Error
	if err != nil {
		return nil, 0, fmt.Errorf("listing media files: %w", err)
	}
	return files, total, nil
}

// ActivePathsUnder returns paths of all non-deleted media files under a root.
func (r *mediaFileRepo) ActivePathsUnder(ctx context.Context, root string) ([]string, error) {
	var paths []string
	err := r.db.WithContext(ctx).Model(&models.MediaFile{}).
		Where(`file_path LIKE ? ESCAPE '\'`, pathPrefixPattern(root)).
		Where("deleted_at IS NULL").
		Pluck("file_path", &paths).Error
	if err != nil {
		return nil, fmt.Errorf("listing active paths: %w", err)
	}
	return paths, nil
}

// Update updates the media file row (not its tracks).
func (r *mediaFileRepo) Update(ctx context.Context, file *models.MediaFile) error {
	err := r.db.WithContext(ctx).
		Omit("VideoTracks", "AudioTracks", "SubtitleTracks").
		Save(file).Error
	if err != nil {
		return fmt.Errorf("updating media file: %w", err)
	}
	return nil
}

// ReplaceTracks atomically deletes and recreates all tracks of a file.
func (r *mediaFileRepo) ReplaceTracks(ctx context.Context, fileID models.ULID, video []models.VideoTrack, audio []models.AudioTrack, subtitle []models.SubtitleTrack) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("media_file_id = ?", fileID).Delete(&models.VideoTrack{}).Error; err != nil {
			return fmt.Errorf("deleting video tracks: %w", err)
		}
		if err := tx.Where("media_file_id = ?", fileID).Delete(&models.AudioTrack{}).Error; err != nil {
			return fmt.Errorf("deleting audio tracks: %w", err)
		}
		if err := tx.Where("media_file_id = ?", fileID).Delete(&models.SubtitleTrack{}).Error; err != nil {
			return fmt.Errorf("deleting subtitle tracks: %w", err)
		}

		for i := range video {
			video[i].MediaFileID = fileID
			if err := tx.Create(&video[i]).Error; err != nil {
				return fmt.Errorf("creating video track: %w", err)
			}
		}
		for i := range audio {
			audio[i].MediaFileID = fileID
			if err := tx.Create(&audio[i]).Error; err != nil {
				return fmt.Errorf("creating audio track: %w", err)
			}
		}
		for i := range subtitle {
			subtitle[i].MediaFileID = fileID
			if err := tx.Create(&subtitle[i]).Error; err != nil {
				return fmt.Errorf("creating subtitle track: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replacing tracks: %w", err)
	}
	return nil
}

// SoftDelete marks the file as deleted at the given time.
func (r *mediaFileRepo) SoftDelete(ctx context.Context, id models.ULID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.MediaFile{}).
		Where("id = ?", id).
		UpdateColumn("deleted_at", at)
	if result.Error != nil {
		return fmt.Errorf("soft deleting media file: %w", result.Error)
	}
	return nil
}

// Restore clears the soft-delete mark.
func (r *mediaFileRepo) Restore(ctx context.Context, id models.ULID) error {
	result := r.db.WithContext(ctx).Model(&models.MediaFile{}).
		Where("id = ?", id).
		UpdateColumn("deleted_at", nil)
	if result.Error != nil {
		return fmt.Errorf("restoring media file: %w", result.Error)
	}
	return nil
}

// DeleteSoftDeletedBefore permanently removes files soft-deleted before the
// cutoff, cascading their tracks.
func (r *mediaFileRepo) DeleteSoftDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []models.ULID
		if err := tx.Model(&models.MediaFile{}).
			Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("finding expired media files: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		// SQLite does not enforce cascades through GORM soft-owned tracks,
		// so delete them explicitly before the parent rows.
		if err := tx.Where("media_file_id IN ?", ids).Delete(&models.VideoTrack{}).Error; err != nil {
			return fmt.Errorf("deleting video tracks: %w", err)
		}
		if err := tx.Where("media_file_id IN ?", ids).Delete(&models.AudioTrack{}).Error; err != nil {
			return fmt.Errorf("deleting audio tracks: %w", err)
		}
		if err := tx.Where("media_file_id IN ?", ids).Delete(&models.SubtitleTrack{}).Error; err != nil {
			return fmt.Errorf("deleting subtitle tracks: %w", err)
		}

		result := tx.Where("id IN ?", ids).Delete(&models.MediaFile{})
		if result.Error != nil {
			return fmt.Errorf("deleting media files: %w", result.Error)
		}
		removed = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Ensure mediaFileRepo implements MediaFileRepository at compile time.
var _ MediaFileRepository = (*mediaFileRepo)(nil)
