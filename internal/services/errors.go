package services

import (
	"net/http"

	apperrors "github.com/charlesng35/authcore/pkg/errors"
)

// Account errors surfaced by AuthService.
var (
	ErrDuplicateEmail      = apperrors.New("DUPLICATE_EMAIL", "An account with this email already exists", http.StatusConflict)
	ErrEmailNotFound       = apperrors.New("EMAIL_NOT_FOUND", "No account found for this email", http.StatusNotFound)
	ErrInvalidCredentials  = apperrors.New("INVALID_CREDENTIALS", "Password is incorrect", http.StatusUnauthorized)
	ErrAccountPending      = apperrors.New("ACCOUNT_PENDING", "Email address has not been confirmed yet", http.StatusForbidden)
	ErrInvalidRefreshToken = apperrors.New("INVALID_REFRESH_TOKEN", "Invalid refresh token", http.StatusBadRequest)
)
