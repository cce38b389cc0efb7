package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/NicolasFerec/ferelix-server/internal/models"
)

// transcodingJobRepo implements TranscodingJobRepository using GORM.
type transcodingJobRepo struct {
	db *gorm.DB
}

// NewTranscodingJobRepository creates a new TranscodingJobRepository.
func NewTranscodingJobRepository(db *gorm.DB) *transcodingJobRepo {
	return &transcodingJobRepo{db: db}
}

// Create creates a new transcoding job.
func (r *transcodingJobRepo) Create(ctx context.Context, job *models.TranscodingJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("creating transcoding job: %w", err)
	}
	return nil
}

// GetByID retrieves a transcoding job by ID.
func (r *transcodingJobRepo) GetByID(ctx context.Context, id string) (*models.TranscodingJob, error) {
	var job models.TranscodingJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting transcoding job by ID: %w", err)
	}
	return &job, nil
}

// Update saves the full job row.
func (r *transcodingJobRepo) Update(ctx context.Context, job *models.TranscodingJob) error {
	if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("updating transcoding job: %w", err)
	}
	return nil
}

// UpdateProgress persists progress columns without touching the rest.
func (r *transcodingJobRepo) UpdateProgress(ctx context.Context, id string, percent, transcoded, fps float64, bitrate int64) error {
	result := r.db.WithContext(ctx).Model(&models.TranscodingJob{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"progress_percent":    percent,
			"transcoded_duration": transcoded,
			"current_fps":         fps,
			"current_bitrate":     bitrate,
			"updated_at":          models.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("updating transcode progress: %w", result.Error)
	}
	return nil
}

// Delete removes a job row.
func (r *transcodingJobRepo) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.TranscodingJob{}).Error; err != nil {
		return fmt.Errorf("deleting transcoding job: %w", err)
	}
	return nil
}

// GetAllWithOutput retrieves every job that has an output directory.
func (r *transcodingJobRepo) GetAllWithOutput(ctx context.Context) ([]*models.TranscodingJob, error) {
	var jobs []*models.TranscodingJob
	err := r.db.WithContext(ctx).
		Where("output_path IS NOT NULL AND output_path != ''").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("getting jobs with output: %w", err)
	}
	return jobs, nil
}

// GetStale retrieves terminal or pending jobs whose last access is older than
// the cutoff. Jobs never accessed fall back to their creation time.
func (r *transcodingJobRepo) GetStale(ctx context.Context, cutoff time.Time) ([]*models.TranscodingJob, error) {
	var jobs []*models.TranscodingJob
	err := r.db.WithContext(ctx).
		Where("status IN (?, ?, ?, ?)",
			models.TranscodeStatusCompleted, models.TranscodeStatusFailed,
			models.TranscodeStatusCancelled, models.TranscodeStatusPending).
		Where("COALESCE(last_accessed_at, created_at) < ?", cutoff).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("getting stale transcoding jobs: %w", err)
	}
	return jobs, nil
}

// Ensure transcodingJobRepo implements TranscodingJobRepository at compile time.
var _ TranscodingJobRepository = (*transcodingJobRepo)(nil)
