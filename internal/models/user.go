package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an account able to authenticate against the API.
type User struct {
	BaseModel
	Username     string     `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	IsAdmin      bool       `json:"is_admin"`
	Disabled     bool       `json:"disabled"`
	LastLoginAt  *time.Time `json:"last_login_at"`
}

// TableName returns the database table name.
func (User) TableName() string {
	return "users"
}

// Validate checks the user fields.
func (u *User) Validate() error {
	if u.Username == "" {
		return ErrUsernameRequired
	}
	return nil
}

// BeforeCreate validates and generates the ID.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if err := u.Validate(); err != nil {
		return err
	}
	return u.BaseModel.BeforeCreate(tx)
}
