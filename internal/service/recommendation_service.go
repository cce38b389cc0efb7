package service

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/NicolasFerec/ferelix-server/internal/filter"
	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
)

// RecommendationService resolves recommendation rows into media listings by
// translating their stored criteria into scoped queries.
type RecommendationService struct {
	db        *gorm.DB
	rows      repository.RecommendationRowRepository
	libraries repository.LibraryRepository
}

// NewRecommendationService creates a recommendation service.
func NewRecommendationService(db *gorm.DB, rows repository.RecommendationRowRepository, libraries repository.LibraryRepository) *RecommendationService {
	return &RecommendationService{db: db, rows: rows, libraries: libraries}
}

// ValidateCriteria parses and validates a criteria document without running
// it. Used when rows are created or updated so bad documents are rejected at
// write time.
func ValidateCriteria(raw string) error {
	criteria, err := filter.Parse(raw)
	if err != nil {
		return err
	}
	return criteria.Validate()
}

// RowItems runs a row's criteria against its library and returns the matching
// media files.
func (s *RecommendationService) RowItems(ctx context.Context, rowID models.ULID) ([]*models.MediaFile, error) {
	row, err := s.rows.GetByID(ctx, rowID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: recommendation row %s", models.ErrNotFound, rowID)
	}
	library, err := s.libraries.GetByID(ctx, row.LibraryID)
	if err != nil {
		return nil, fmt.Errorf("loading library for row %s: %w", rowID, err)
	}
	if library == nil {
		return nil, fmt.Errorf("%w: library for row %s", models.ErrNotFound, rowID)
	}

	criteria, err := filter.Parse(row.Criteria)
	if err != nil {
		return nil, err
	}
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	var items []*models.MediaFile
	query := s.db.WithContext(ctx).Model(&models.MediaFile{})
	if err := criteria.Apply(query, library.Path).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("querying row items: %w", err)
	}
	return items, nil
}
