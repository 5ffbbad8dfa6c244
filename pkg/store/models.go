package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	Email        string `gorm:"primaryKey"`
	Username     string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
	Disabled     bool   `gorm:"not null;default:false"`
	Domains      datatypes.JSON `gorm:"type:jsonb"`
	FilterWords  datatypes.JSON `gorm:"type:jsonb"`
	APIToken     string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type OTPModel struct {
	Email    string    `gorm:"primaryKey"`
	CodeHash string    `gorm:"not null"`
	Purpose  string    `gorm:"not null"`
	IssuedAt time.Time `gorm:"not null"`
	Verified bool      `gorm:"not null;default:false"`
}

type ConversationModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Query     string    `gorm:"type:text;not null"`
	Response  string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}
