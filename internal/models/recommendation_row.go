package models

import "gorm.io/gorm"

// RecommendationRow is an ordered, filter-driven shelf of media for a library.
// Criteria holds a JSON filter document translated at query time; unknown
// fields or operators in it are rejected with ErrInvalidArgument.
type RecommendationRow struct {
	BaseModel
	LibraryID ULID   `gorm:"index;not null" json:"library_id"`
	Title     string `gorm:"not null" json:"title"`
	SortOrder int    `gorm:"default:0" json:"sort_order"`
	Criteria  string `gorm:"type:text" json:"criteria"`
	Enabled   *bool  `gorm:"default:true" json:"enabled"`
}

// TableName returns the database table name.
func (RecommendationRow) TableName() string {
	return "recommendation_rows"
}

// IsEnabled returns whether the row is enabled.
func (r *RecommendationRow) IsEnabled() bool {
	return BoolVal(r.Enabled)
}

// Validate checks the row fields.
func (r *RecommendationRow) Validate() error {
	if r.Title == "" {
		return ErrNameRequired
	}
	if r.LibraryID.IsZero() {
		return ErrLibraryIDRequired
	}
	return nil
}

// BeforeCreate validates and generates the ID.
func (r *RecommendationRow) BeforeCreate(tx *gorm.DB) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return r.BaseModel.BeforeCreate(tx)
}
