package auth

import (
	"errors"
	"fmt"
)

var (
	ErrAccountExists            = errors.New("account already exists")
	ErrAccountNotFound          = errors.New("account not found")
	ErrAccountNotVerified       = errors.New("account not verified")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrNoPasswordSet            = errors.New("password not set for this account")
	ErrOtpNotRequested          = errors.New("otp not requested")
	ErrOtpExpired               = errors.New("otp expired")
	ErrOtpInvalid               = errors.New("invalid otp")
	ErrInvalidFederatedToken    = errors.New("invalid federated token")
	ErrFederatedAuthUnavailable = errors.New("federated auth not configured")
	ErrInvalidToken             = errors.New("invalid token")
)

// ValidationError reports a malformed request field. It is returned before any store access.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is (or wraps) a *ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
