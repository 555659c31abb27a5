package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashFormat identifies how a stored password hash was produced.
type HashFormat int

const (
	HashFormatUnknown HashFormat = iota
	// HashFormatBcrypt is the only format written today.
	HashFormatBcrypt
	// HashFormatSaltedSHA256 is "<salt>$<hex sha256(salt+password)>".
	HashFormatSaltedSHA256
	// HashFormatSHA256 is a bare hex sha256(password).
	HashFormatSHA256
)

func (f HashFormat) String() string {
	switch f {
	case HashFormatBcrypt:
		return "bcrypt"
	case HashFormatSaltedSHA256:
		return "salted-sha256"
	case HashFormatSHA256:
		return "sha256"
	}
	return "unknown"
}

// Legacy reports whether the format is accepted for verification only.
func (f HashFormat) Legacy() bool {
	return f == HashFormatSaltedSHA256 || f == HashFormatSHA256
}

func DetectHashFormat(hash string) HashFormat {
	switch {
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return HashFormatBcrypt
	case strings.Contains(hash, "$"):
		salt, digest, _ := strings.Cut(hash, "$")
		if salt != "" && isSHA256Hex(digest) {
			return HashFormatSaltedSHA256
		}
	case isSHA256Hex(hash):
		return HashFormatSHA256
	}
	return HashFormatUnknown
}

// HashPassword returns a bcrypt hash with a fresh random salt.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks password against a hash of any supported format.
func VerifyPassword(password, hash string) bool {
	switch DetectHashFormat(hash) {
	case HashFormatBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	case HashFormatSaltedSHA256:
		salt, digest, _ := strings.Cut(hash, "$")
		return sha256Equal(salt+password, digest)
	case HashFormatSHA256:
		return sha256Equal(password, hash)
	}
	return false
}

// NeedsRehash reports whether a verified hash should be replaced by a fresh bcrypt hash.
func NeedsRehash(hash string, cost int) bool {
	if DetectHashFormat(hash) != HashFormatBcrypt {
		return true
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	current, err := bcrypt.Cost([]byte(hash))
	return err != nil || current < cost
}

func sha256Equal(input, expectedHex string) bool {
	sum := sha256.Sum256([]byte(input))
	got := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(expectedHex))) == 1
}

func isSHA256Hex(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
