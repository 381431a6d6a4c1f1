package utils

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidPhone is returned when a number is not a valid number of the
// configured region.
var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizeEmail lowercases and trims. Applying it twice is a no-op.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone parses raw as a number of region and returns it in E.164.
// Output fed back in yields the same output.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidPhone
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", ErrInvalidPhone
	}
	if !phonenumbers.IsValidNumberForRegion(num, region) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// LooksLikeEmail is the login identifier split: anything with an @ is looked
// up as an email, everything else as a phone number.
func LooksLikeEmail(identifier string) bool {
	return strings.Contains(identifier, "@")
}
