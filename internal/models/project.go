package models

import "gorm.io/gorm"

// Project groups the manuscripts an author is working on
type Project struct {
	gorm.Model
	UserID      uint   `gorm:"not null;index"`
	User        User   `gorm:"constraint:OnDelete:CASCADE;"`
	Title       string `gorm:"not null"`
	Description string `gorm:"not null;default:''"`

	Manuscripts []Manuscript `gorm:"constraint:OnDelete:CASCADE;"`
}
