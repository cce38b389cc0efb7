package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/NicolasFerec/ferelix-server/internal/models"
)

// settingsRepo implements SettingsRepository using GORM.
type settingsRepo struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *gorm.DB) *settingsRepo {
	return &settingsRepo{db: db}
}

// GetOrCreate returns the singleton row, creating it with defaults if absent.
func (r *settingsRepo) GetOrCreate(ctx context.Context) (*models.Settings, error) {
	var settings models.Settings
	err := r.db.WithContext(ctx).Where("id = ?", 1).First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("getting settings: %w", err)
	}

	defaults := models.DefaultSettings()
	if err := r.db.WithContext(ctx).Create(defaults).Error; err != nil {
		return nil, fmt.Errorf("creating default settings: %w", err)
	}
	return defaults, nil
}

// Update saves the singleton row.
func (r *settingsRepo) Update(ctx context.Context, settings *models.Settings) error {
	settings.ID = 1
	if err := r.db.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("updating settings: %w", err)
	}
	return nil
}

// Ensure settingsRepo implements SettingsRepository at compile time.
var _ SettingsRepository = (*settingsRepo)(nil)
