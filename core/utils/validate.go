package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

const (
	UsernameMinLength = 3
	UsernameMaxLength = 25
	PasswordMinLength = 6
	// PasswordMaxLength is the bcrypt input limit in bytes.
	PasswordMaxLength = 72
)

var (
	ErrInvalidUsername  = errors.New("username must be 3-25 characters, letters and digits only")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes")
)

// NormalizeUsername is the single case-folding rule shared by every username lookup and insert.
func NormalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidateUsername expects an already normalized username.
func ValidateUsername(username string) error {
	if len(username) < UsernameMinLength || len(username) > UsernameMaxLength {
		return ErrInvalidUsername
	}
	for i := 0; i < len(username); i++ {
		c := username[i]
		isLetter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if !isLetter && !isDigit {
			return ErrInvalidUsername
		}
	}
	return nil
}

func ValidatePassword(password string) error {
	if len([]rune(password)) < PasswordMinLength {
		return ErrPasswordTooShort
	}
	if len(password) > PasswordMaxLength {
		return ErrPasswordTooLong
	}
	return nil
}

func RandString(n int) (string, error) {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf)[:n], nil
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
