package service

import (
	"errors"

	"rbac-auth/internal/security"
)

var (
	// ErrValidation marks input the caller must fix: empty fields, taken names.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is shared with the token verifier.
	ErrInvalidToken = security.ErrInvalidToken
	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrRoleNotFound is returned when the referenced role does not exist.
	ErrRoleNotFound = errors.New("role not found")
)
