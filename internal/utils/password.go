package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLen = 16
	keyLen  = 32

	// PasswordMinLength is the shortest password the policy accepts.
	PasswordMinLength = 8

	// PasswordSymbols is the approved set of special characters.
	PasswordSymbols = "!@#$%^&*()-_=+[]{};:'\",.<>/?\\|`~"
)

// PasswordHasher derives PBKDF2-HMAC-SHA256 keys. The encoded form is
// base64(salt || key); the iteration count is a deployment constant and is
// not embedded, so it must not change once hashes exist.
type PasswordHasher struct {
	iterations int
}

// NewPasswordHasher returns a hasher using the given iteration count. It
// panics on a non-positive count, which can only come from a wiring bug.
func NewPasswordHasher(iterations int) *PasswordHasher {
	if iterations <= 0 {
		panic("utils: PBKDF2 iteration count must be positive")
	}
	return &PasswordHasher{iterations: iterations}
}

// Hash returns base64(salt || key) using a fresh random salt, so two calls
// with the same password never produce the same string.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, h.iterations, keyLen, sha256.New)

	out := make([]byte, 0, saltLen+keyLen)
	out = append(out, salt...)
	out = append(out, key...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Verify re-derives the key with the embedded salt and compares in constant
// time. Malformed input yields false.
func (h *PasswordHasher) Verify(password, encoded string) bool {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != saltLen+keyLen {
		return false
	}
	salt, want := raw[:saltLen], raw[saltLen:]
	got := pbkdf2.Key([]byte(password), salt, h.iterations, keyLen, sha256.New)
	return subtle.ConstantTimeCompare(want, got) == 1
}

// MeetsPasswordPolicy requires at least PasswordMinLength characters with an
// uppercase letter, a lowercase letter, a digit and one of PasswordSymbols.
func MeetsPasswordPolicy(password string) bool {
	if len([]rune(password)) < PasswordMinLength {
		return false
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(PasswordSymbols, r):
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}
