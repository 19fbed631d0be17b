package validator

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
)

type testPayload struct {
	Name     string `json:"name" validate:"required,personname"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=5"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := testPayload{
		Name:     "Alice Liddell",
		Email:    "alice@example.com",
		Password: "secret",
	}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	payload := testPayload{
		Name:     "R2-D2",
		Email:    "invalid",
		Password: "abc",
	}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(vErrs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d", len(vErrs))
	}

	tags := map[string]string{}
	for _, v := range vErrs {
		tags[v.Field] = v.Tag
	}

	if tags["name"] != PersonNameTag {
		t.Fatalf("expected name to fail on %s, got %q", PersonNameTag, tags["name"])
	}
	if tags["email"] != "email" {
		t.Fatalf("expected email to fail on email, got %q", tags["email"])
	}
	if tags["password"] != "min" {
		t.Fatalf("expected password to fail on min, got %q", tags["password"])
	}
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("lowercase_token", func(fl validator.FieldLevel) bool {
		return strings.ToLower(fl.Field().String()) == fl.Field().String()
	})
	if err != nil {
		t.Fatalf("register validation: %v", err)
	}

	type custom struct {
		Value string `validate:"lowercase_token"`
	}

	if err := ValidateStruct(custom{Value: "abc"}); err != nil {
		t.Fatalf("expected validation to pass, got %v", err)
	}
	if err := ValidateStruct(custom{Value: "ABC"}); err == nil {
		t.Fatal("expected validation to fail for non-matching value")
	}
}
