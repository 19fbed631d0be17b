package auth

import (
	"net/http"

	apperrors "github.com/charlesng35/authcore/pkg/errors"
)

// Token lifecycle errors. Internal causes are attached with WithInternal and never rendered.
var (
	ErrConfiguration   = apperrors.New("CONFIGURATION_ERROR", "Token configuration is incomplete", http.StatusInternalServerError)
	ErrInvalidToken    = apperrors.New("INVALID_TOKEN", "Token is invalid", http.StatusBadRequest)
	ErrExpiredToken    = apperrors.New("EXPIRED_TOKEN", "Token has expired", http.StatusBadRequest)
	ErrRevokedToken    = apperrors.New("REVOKED_TOKEN", "Token has been revoked", http.StatusBadRequest)
	ErrAlreadyVerified = apperrors.New("ALREADY_VERIFIED", "Email address is already verified", http.StatusConflict)
	ErrConflict        = apperrors.New("CONFLICT", "Resource already exists", http.StatusConflict)
)
