package models

import (
	"testing"
	"time"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestBaseModelBeforeCreateKeepsExistingID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID != "fixed" {
		t.Fatalf("expected ID to be preserved, got %q", base.ID)
	}
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"user", func() *BaseModel {
			u := &User{}
			return &u.BaseModel
		}},
		{"token", func() *BaseModel {
			tok := &Token{}
			return &tok.BaseModel
		}},
		{"mail_job", func() *BaseModel {
			j := &MailJob{}
			return &j.BaseModel
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := tc.model()
			if err := model.BeforeCreate(nil); err != nil {
				t.Fatalf("before create: %v", err)
			}
			if model.ID == "" {
				t.Fatal("expected ID to be generated")
			}
		})
	}
}

func TestUserBeforeCreateNormalisesEmail(t *testing.T) {
	u := &User{Email: "  Alice@Example.COM "}
	if err := u.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Fatalf("expected normalised email, got %q", u.Email)
	}
	if u.ID == "" {
		t.Fatal("expected ID to be generated")
	}
}

func TestUserIsVerified(t *testing.T) {
	var nilUser *User
	if nilUser.IsVerified() {
		t.Fatal("nil user must not be verified")
	}

	u := &User{}
	if u.IsVerified() {
		t.Fatal("expected unverified user")
	}
	now := time.Now()
	u.EmailVerifiedAt = &now
	if !u.IsVerified() {
		t.Fatal("expected verified user")
	}
}

func TestTokenIsExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tok := &Token{ExpiresAt: now}

	if tok.IsExpired(now) {
		t.Fatal("token expiring exactly now is still valid")
	}
	if !tok.IsExpired(now.Add(time.Nanosecond)) {
		t.Fatal("expected token to be expired after its expiry")
	}
}
