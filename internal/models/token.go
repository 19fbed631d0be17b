package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/authcore/pkg/crypto"
)

// TokenType enumerates the persisted token kinds. Access tokens are never stored.
type TokenType string

const (
	TokenTypeRefresh           TokenType = "REFRESH"
	TokenTypeEmailVerification TokenType = "EMAIL_VERIFICATION"
)

// Token is a stored refresh or email-verification token. Rows are only ever deactivated.
// The raw value lives in memory only; the table keeps its digest.
type Token struct {
	BaseModel

	Token     string    `gorm:"-" json:"-"`
	TokenHash string    `gorm:"uniqueIndex;size:64;not null" json:"-"`
	Type      TokenType `gorm:"size:32;not null;index" json:"type"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	IssuedAt  time.Time `gorm:"not null" json:"issued_at"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
}

// BeforeCreate derives the digest from the raw value.
func (t *Token) BeforeCreate(tx *gorm.DB) error {
	if t.TokenHash == "" && t.Token != "" {
		t.TokenHash = crypto.DigestToken(t.Token)
	}
	return t.BaseModel.BeforeCreate(tx)
}

// IsExpired reports whether the token expired strictly before now.
func (t *Token) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
