package auth

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const passwordSymbols = `!@#$%^&*(),.?":{}|<>`

// PolicyError describes a violated signup validation rule. Its message is
// safe to show to end users.
type PolicyError string

func (e PolicyError) Error() string { return string(e) }

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword validates a password against a stored bcrypt hash.
func CheckPassword(password, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

// ValidatePassword enforces the signup password policy: minimum 8 characters
// with upper case, lower case, a digit, and one symbol from a fixed set.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return PolicyError("password must be at least 8 characters long")
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}
	switch {
	case !hasUpper:
		return PolicyError("password must contain at least one uppercase letter")
	case !hasLower:
		return PolicyError("password must contain at least one lowercase letter")
	case !hasDigit:
		return PolicyError("password must contain at least one number")
	case !hasSymbol:
		return PolicyError("password must contain at least one special character")
	}
	return nil
}

// ValidateUsername enforces the signup username policy: minimum 3 characters,
// letters, digits, and underscores only.
func ValidateUsername(username string) error {
	if len(username) < 3 {
		return PolicyError("username must be at least 3 characters long")
	}
	for _, r := range username {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return PolicyError("username can only contain letters, numbers, and underscores")
	}
	return nil
}
