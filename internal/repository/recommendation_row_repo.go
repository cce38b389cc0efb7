package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/NicolasFerec/ferelix-server/internal/models"
)

// recommendationRowRepo implements RecommendationRowRepository using GORM.
type recommendationRowRepo struct {
	db *gorm.DB
}

// NewRecommendationRowRepository creates a new RecommendationRowRepository.
func NewRecommendationRowRepository(db *gorm.DB) *recommendationRowRepo {
	return &recommendationRowRepo{db: db}
}

// Create creates a new recommendation row.
func (r *recommendationRowRepo) Create(ctx context.Context, row *models.RecommendationRow) error {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("creating recommendation row: %w", err)
	}
	return nil
}

// GetByID retrieves a row by ID.
func (r *recommendationRowRepo) GetByID(ctx context.Context, id models.ULID) (*models.RecommendationRow, error) {
	var row models.RecommendationRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting recommendation row by ID: %w", err)
	}
	return &row, nil
}

// GetByLibrary retrieves rows for a library ordered by sort order.
func (r *recommendationRowRepo) GetByLibrary(ctx context.Context, libraryID models.ULID) ([]*models.RecommendationRow, error) {
	var rows []*models.RecommendationRow
	err := r.db.WithContext(ctx).
		Where("library_id = ?", libraryID).
		Order("sort_order ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("getting recommendation rows: %w", err)
	}
	return rows, nil
}

// Update updates an existing row.
func (r *recommendationRowRepo) Update(ctx context.Context, row *models.RecommendationRow) error {
	if err := r.db.WithContext(ctx).Save(row).Error; err != nil {
		return fmt.Errorf("updating recommendation row: %w", err)
	}
	return nil
}

// Delete deletes a row by ID.
func (r *recommendationRowRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.RecommendationRow{}).Error; err != nil {
		return fmt.Errorf("deleting recommendation row: %w", err)
	}
	return nil
}

// Ensure recommendationRowRepo implements RecommendationRowRepository at compile time.
var _ RecommendationRowRepository = (*recommendationRowRepo)(nil)
