package auth

import (
	"errors"
	"fmt"

	"mdip/core/utils"
)

var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidUsername    = utils.ErrInvalidUsername
	ErrPasswordTooShort   = utils.ErrPasswordTooShort
	ErrPasswordTooLong    = utils.ErrPasswordTooLong
	ErrInvalidRole        = errors.New("invalid role")
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrVerificationFailed = errors.New("current password is incorrect")
	ErrForbidden          = errors.New("forbidden")
	ErrSelfDelete         = errors.New("cannot delete your own account")
	ErrLastAdmin          = errors.New("at least one admin account must remain")
	ErrRegistrationClosed = errors.New("self-registration is disabled")
	ErrStoreUnavailable   = errors.New("credential store unavailable")
	ErrTOTPRequired       = errors.New("one-time code required")
	ErrTOTPInvalid        = errors.New("invalid one-time code")
	ErrTOTPNotEnrolled    = errors.New("totp enrollment not started")
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	ErrInvalidToken       = errors.New("invalid token")
)

func storeErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
