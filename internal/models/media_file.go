package models

import (
	"time"

	"gorm.io/gorm"
)

// MediaFile represents an indexed video file on disk.
//
// Soft deletion is scanner-owned: DeletedAt is set when a completed scan pass
// fails to observe the path, cleared when the path reappears, and the row is
// destroyed permanently by cleanup once the grace period has elapsed.
// Invariant: DeletedAt == nil iff the file was present on disk as of the last
// completed scan of its library.
type MediaFile struct {
	BaseModel
	FilePath      string `gorm:"uniqueIndex;not null" json:"file_path"`
	FileName      string `gorm:"not null" json:"file_name"`
	FileSize      int64  `json:"file_size"`
	FileExtension string `json:"file_extension"`

	// Container-level metadata from the probe. Nil when probing failed.
	Duration *float64 `json:"duration"`
	Bitrate  *int64   `json:"bitrate"`
	Width    *int     `json:"width"`
	Height   *int     `json:"height"`
	Codec    *string  `json:"codec"`

	ScannedAt *time.Time `json:"scanned_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at"`

	VideoTracks    []VideoTrack    `gorm:"foreignKey:MediaFileID;constraint:OnDelete:CASCADE" json:"video_tracks,omitempty"`
	AudioTracks    []AudioTrack    `gorm:"foreignKey:MediaFileID;constraint:OnDelete:CASCADE" json:"audio_tracks,omitempty"`
	SubtitleTracks []SubtitleTrack `gorm:"foreignKey:MediaFileID;constraint:OnDelete:CASCADE" json:"subtitle_tracks,omitempty"`
}

// TableName returns the database table name.
func (MediaFile) TableName() string {
	return "media_files"
}

// Validate checks the media file fields.
func (m *MediaFile) Validate() error {
	if m.FilePath == "" {
		return ErrFilePathRequired
	}
	return nil
}

// BeforeCreate validates and generates the ID.
func (m *MediaFile) BeforeCreate(tx *gorm.DB) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return m.BaseModel.BeforeCreate(tx)
}

// IsDeleted returns whether the file is currently soft-deleted.
func (m *MediaFile) IsDeleted() bool {
	return m.DeletedAt != nil
}

// VideoTrack holds per-stream video metadata from the probe.
// StreamIndex is the probe's absolute stream index, used verbatim in encoder
// stream-map arguments. It is unique within a MediaFile.
type VideoTrack struct {
	BaseModel
	MediaFileID ULID   `gorm:"index;not null" json:"media_file_id"`
	StreamIndex int    `gorm:"not null" json:"stream_index"`
	Codec       string `json:"codec"`

	Width       *int     `json:"width"`
	Height      *int     `json:"height"`
	Bitrate     *int64   `json:"bitrate"`
	Framerate   *float64 `json:"framerate"`
	Profile     *string  `json:"profile"`
	Level       *int     `json:"level"`
	PixelFormat *string  `json:"pixel_format"`
	BitDepth    *int     `json:"bit_depth"`

	ColorRange     *string `json:"color_range"`
	ColorSpace     *string `json:"color_space"`
	ColorPrimaries *string `json:"color_primaries"`
	ColorTransfer  *string `json:"color_transfer"`

	// HDR mastering display metadata, normalized from rational side data.
	MaxLuminance *float64 `json:"max_luminance"`
	MinLuminance *float64 `json:"min_luminance"`
	MaxCLL       *int     `json:"max_cll"`
	MaxFALL      *int     `json:"max_fall"`
}

// TableName returns the database table name.
func (VideoTrack) TableName() string {
	return "video_tracks"
}

// AudioTrack holds per-stream audio metadata from the probe.
type AudioTrack struct {
	BaseModel
	MediaFileID ULID   `gorm:"index;not null" json:"media_file_id"`
	StreamIndex int    `gorm:"not null" json:"stream_index"`
	Codec       string `json:"codec"`

	Channels      *int    `json:"channels"`
	SampleRate    *int    `json:"sample_rate"`
	Bitrate       *int64  `json:"bitrate"`
	Language      *string `json:"language"`
	ChannelLayout *string `json:"channel_layout"`
	IsDefault     bool    `json:"is_default"`
}

// TableName returns the database table name.
func (AudioTrack) TableName() string {
	return "audio_tracks"
}

// SubtitleTrack holds per-stream subtitle metadata from the probe.
type SubtitleTrack struct {
	BaseModel
	MediaFileID ULID   `gorm:"index;not null" json:"media_file_id"`
	StreamIndex int    `gorm:"not null" json:"stream_index"`
	Codec       string `json:"codec"`

	Language  *string `json:"language"`
	Title     *string `json:"title"`
	IsDefault bool    `json:"is_default"`
	IsForced  bool    `json:"is_forced"`
}

// TableName returns the database table name.
func (SubtitleTrack) TableName() string {
	return "subtitle_tracks"
}
