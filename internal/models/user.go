package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an academic author with an optional linked ORCID iD
type User struct {
	gorm.Model
	Email       string `gorm:"uniqueIndex:idx_users_email_not_deleted,where:deleted_at IS NULL;not null"`
	Name        string `gorm:"not null;default:''"`
	OrcidID     string `gorm:"column:orcid_id;not null;default:''"`
	Role        string `gorm:"not null;default:'author'"` // enum: 'author' or 'admin'
	LastLoginAt *time.Time

	// Associations
	AuthIdentities []AuthIdentity `gorm:"constraint:OnDelete:CASCADE;"`
	Projects       []Project      `gorm:"constraint:OnDelete:CASCADE;"`
}
