package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is a locally registered account. A nil EmailVerifiedAt means the address is unconfirmed.
type User struct {
	BaseModel

	Name            string     `gorm:"not null" json:"name"`
	Email           string     `gorm:"uniqueIndex;not null" json:"email"`
	Password        string     `gorm:"not null" json:"-"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
}

// BeforeCreate assigns the ID and normalises the email so the unique index is case-insensitive.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	return u.BaseModel.BeforeCreate(tx)
}

// IsVerified reports whether the user confirmed their email address.
func (u *User) IsVerified() bool {
	return u != nil && u.EmailVerifiedAt != nil
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
