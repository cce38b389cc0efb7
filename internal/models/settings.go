package models

import "time"

// Settings is a singleton row (ID 1) holding runtime-tunable schedules.
// Updating it reschedules the scanner and maintenance jobs without restart.
type Settings struct {
	ID                       uint      `gorm:"primarykey" json:"id"`
	LibraryScanIntervalMin   int       `gorm:"column:library_scan_interval_minutes;default:120" json:"library_scan_interval_minutes"`
	CleanupScheduleHour      int       `gorm:"default:3" json:"cleanup_schedule_hour"`
	CleanupScheduleMinute    int       `gorm:"default:0" json:"cleanup_schedule_minute"`
	CleanupGracePeriodDays   int       `gorm:"default:30" json:"cleanup_grace_period_days"`
	TranscodeSessionMaxHours int       `gorm:"default:24" json:"transcode_session_max_hours"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Settings) TableName() string {
	return "settings"
}

// DefaultSettings returns the singleton with default values.
func DefaultSettings() *Settings {
	return &Settings{
		ID:                       1,
		LibraryScanIntervalMin:   120,
		CleanupScheduleHour:      3,
		CleanupScheduleMinute:    0,
		CleanupGracePeriodDays:   30,
		TranscodeSessionMaxHours: 24,
	}
}

// ScanInterval returns the library scan interval as a duration.
func (s *Settings) ScanInterval() time.Duration {
	return time.Duration(s.LibraryScanIntervalMin) * time.Minute
}

// GracePeriod returns the soft-delete grace period as a duration.
func (s *Settings) GracePeriod() time.Duration {
	return time.Duration(s.CleanupGracePeriodDays) * 24 * time.Hour
}
