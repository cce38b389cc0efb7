package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TranscodeType identifies the kind of transcoding session.
type TranscodeType string

// Transcode types.
const (
	TranscodeTypeHLS            TranscodeType = "hls"
	TranscodeTypeProgressive    TranscodeType = "progressive"
	TranscodeTypeRemux          TranscodeType = "remux"
	TranscodeTypeAudioTranscode TranscodeType = "audio_transcode"
)

// TranscodeStatus is the lifecycle status of a transcoding job.
type TranscodeStatus string

// Transcode statuses.
const (
	TranscodeStatusPending   TranscodeStatus = "pending"
	TranscodeStatusRunning   TranscodeStatus = "running"
	TranscodeStatusCompleted TranscodeStatus = "completed"
	TranscodeStatusFailed    TranscodeStatus = "failed"
	TranscodeStatusCancelled TranscodeStatus = "cancelled"
)

// IsTerminal returns true for completed, failed, and cancelled.
func (s TranscodeStatus) IsTerminal() bool {
	return s == TranscodeStatusCompleted || s == TranscodeStatusFailed || s == TranscodeStatusCancelled
}

// TranscodingJob tracks one encoder session and its output directory.
//
// Invariant: at most one live child process per job id; Status == running
// implies the process referenced by ProcessID is alive, otherwise the job
// must be transitioned to failed.
type TranscodingJob struct {
	ID          string          `gorm:"primarykey;type:varchar(36)" json:"id"`
	MediaFileID ULID            `gorm:"index;not null" json:"media_file_id"`
	SessionID   string          `gorm:"type:varchar(36)" json:"session_id"`
	Type        TranscodeType   `gorm:"not null" json:"type"`
	Status      TranscodeStatus `gorm:"not null;default:'pending'" json:"status"`

	VideoCodec   string `json:"video_codec"`
	AudioCodec   string `json:"audio_codec"`
	VideoBitrate *int64 `json:"video_bitrate"`
	AudioBitrate *int64 `json:"audio_bitrate"`
	MaxWidth     *int   `json:"max_width"`
	MaxHeight    *int   `json:"max_height"`

	// StartTime is the fast-seek offset in seconds applied before the input.
	// Progress reporting is job-relative: absolute encoder time minus this.
	StartTime float64 `json:"start_time"`

	OutputPath    string `json:"output_path"`
	PlaylistPath  string `json:"playlist_path"`
	ProcessID     *int   `json:"process_id"`
	FFmpegCommand string `json:"ffmpeg_command"`
	ErrorMessage  string `json:"error_message"`

	ProgressPercent    float64 `json:"progress_percent"`
	TranscodedDuration float64 `json:"transcoded_duration"`
	CurrentFPS         float64 `json:"current_fps"`
	CurrentBitrate     int64   `json:"current_bitrate"`

	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	LastAccessedAt *time.Time `gorm:"index" json:"last_accessed_at"`
}

// TableName returns the database table name.
func (TranscodingJob) TableName() string {
	return "transcoding_jobs"
}

// Validate checks the transcoding job fields.
func (j *TranscodingJob) Validate() error {
	if j.MediaFileID.IsZero() {
		return ErrMediaFileIDRequired
	}
	switch j.Type {
	case TranscodeTypeHLS, TranscodeTypeProgressive, TranscodeTypeRemux, TranscodeTypeAudioTranscode:
	default:
		return ErrInvalidTranscodeType
	}
	return nil
}

// BeforeCreate validates and assigns a UUID if not set.
func (j *TranscodingJob) BeforeCreate(tx *gorm.DB) error {
	if err := j.Validate(); err != nil {
		return err
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.SessionID == "" {
		j.SessionID = uuid.NewString()
	}
	return nil
}

// MarkRunning transitions the job to running.
func (j *TranscodingJob) MarkRunning(pid int) {
	now := Now()
	j.Status = TranscodeStatusRunning
	j.ProcessID = &pid
	j.StartedAt = &now
	j.LastAccessedAt = &now
}

// MarkCompleted transitions the job to completed with full progress.
func (j *TranscodingJob) MarkCompleted() {
	now := Now()
	j.Status = TranscodeStatusCompleted
	j.ProgressPercent = 100
	j.CompletedAt = &now
}

// MarkFailed transitions the job to failed with an error message.
func (j *TranscodingJob) MarkFailed(msg string) {
	now := Now()
	j.Status = TranscodeStatusFailed
	j.ErrorMessage = msg
	j.CompletedAt = &now
}

// MarkCancelled transitions the job to cancelled.
func (j *TranscodingJob) MarkCancelled() {
	now := Now()
	j.Status = TranscodeStatusCancelled
	j.CompletedAt = &now
}

// Touch updates the last accessed timestamp.
func (j *TranscodingJob) Touch() {
	now := Now()
	j.LastAccessedAt = &now
}
