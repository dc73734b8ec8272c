// Package credentials implements the credential primitives: password and PIN
// hashing, password policy, PIN rules, and secure token material.
package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt cost used for passwords, PINs, and stored tokens.
const PasswordCost = 12

const specialChars = `!@#$%^&*(),.?":{}|<>`

// Strength labels returned by CheckPassword for UX hints.
const (
	StrengthWeak   = "weak"
	StrengthMedium = "medium"
	StrengthStrong = "strong"
)

// PasswordResult reports policy compliance for a candidate password.
type PasswordResult struct {
	Valid       bool
	Strength    string
	FailedRules []string
}

// CheckPassword evaluates the password policy: length ≥ 8 and at least one
// uppercase, lowercase, digit, and special character. Any fully-passing
// password is "strong"; ≥3 failed rules is "weak", otherwise "medium".
func CheckPassword(password string) PasswordResult {
	var failed []string
	if len(password) < 8 {
		failed = append(failed, "must be at least 8 characters")
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}
	if !upper {
		failed = append(failed, "must contain an uppercase letter")
	}
	if !lower {
		failed = append(failed, "must contain a lowercase letter")
	}
	if !digit {
		failed = append(failed, "must contain a digit")
	}
	if !special {
		failed = append(failed, "must contain a special character")
	}

	strength := StrengthStrong
	switch {
	case len(failed) >= 3:
		strength = StrengthWeak
	case len(failed) >= 1:
		strength = StrengthMedium
	}
	return PasswordResult{Valid: len(failed) == 0, Strength: strength, FailedRules: failed}
}

// HashPassword hashes a password with bcrypt at PasswordCost.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// VerifyPassword reports whether password matches the stored bcrypt hash.
// bcrypt's comparison is constant-time over the derived key.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashToken returns the SHA-256 hex digest under which bearer tokens are
// stored. Raw tokens are never persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RandomToken returns a hex-encoded random token of n bytes.
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
