package authsvc

import "errors"

var (
	// ErrAccountNotFound is returned by a Directory when no account has the email.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned by Directory.Create for a taken email.
	ErrAccountExists = errors.New("account already exists")
	// ErrBackendUnavailable wraps directory, Redis and delivery failures.
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	// ErrResetDisabled is returned when password reset is switched off.
	ErrResetDisabled = errors.New("password reset disabled")
	// ErrResetLinkInvalid is returned for an unknown, used, expired or forged reset link.
	ErrResetLinkInvalid = errors.New("reset link invalid or expired")
)
