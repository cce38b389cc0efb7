package models

// LibraryType identifies what kind of content a library holds.
type LibraryType string

// Library types.
const (
	LibraryTypeMovies LibraryType = "movies"
	LibraryTypeShows  LibraryType = "shows"
)

// Library represents a root directory scanned for media files.
//
// Deleting a library does not cascade to MediaFiles; the scanner is the sole
// authority for media file lifecycle.
type Library struct {
	BaseModel
	Name    string      `gorm:"not null" json:"name"`
	Path    string      `gorm:"uniqueIndex;not null" json:"path"`
	Type    LibraryType `gorm:"not null;default:'movies'" json:"type"`
	Enabled *bool       `gorm:"default:true" json:"enabled"`

	RecommendationRows []RecommendationRow `gorm:"foreignKey:LibraryID;constraint:OnDelete:CASCADE" json:"recommendation_rows,omitempty"`
}

// TableName returns the database table name.
func (Library) TableName() string {
	return "libraries"
}

// IsEnabled returns whether the library is enabled.
func (l *Library) IsEnabled() bool {
	return BoolVal(l.Enabled)
}

// Validate checks the library fields.
func (l *Library) Validate() error {
	if l.Name == "" {
		return ErrNameRequired
	}
	if l.Path == "" {
		return ErrPathRequired
	}
	switch l.Type {
	case LibraryTypeMovies, LibraryTypeShows:
	default:
		return ErrInvalidLibraryType
	}
	return nil
}
