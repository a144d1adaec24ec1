package models

import "errors"

// Domain-level sentinel errors for business logic
// These errors should not contain HTTP-specific information

var (
	// ErrInvalidCredentials indicates that a login attempt was rejected
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAuthRequired indicates that no token was available when an
	// authorized request or stream connection was attempted
	ErrAuthRequired = errors.New("authentication required")

	// ErrTokenInvalid indicates that the server rejected the bearer token
	// as expired or unknown
	ErrTokenInvalid = errors.New("token invalid or expired")

	// ErrUserNotFound indicates that no user exists for the given username
	ErrUserNotFound = errors.New("user not found")

	// ErrPermissionDenied indicates that the user's role does not grant the
	// required permission
	ErrPermissionDenied = errors.New("permission denied")
)
