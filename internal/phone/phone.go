// Package phone validates and normalizes phone numbers to E.164.
package phone

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "US"

var (
	ErrEmpty   = errors.New("phone number is empty")
	ErrInvalid = errors.New("phone number is not valid")
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{0,14}$`)

// IsValidE164 reports whether s is already in E.164 form: a leading "+",
// a non-zero first digit and at most 15 digits.
func IsValidE164(s string) bool {
	return e164Pattern.MatchString(s)
}

// NormalizeToE164 parses raw in the given default region and returns it in
// E.164 form. Numbers that no region could dial are rejected.
func NormalizeToE164(raw, defaultRegion string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmpty
	}
	if defaultRegion == "" {
		defaultRegion = DefaultRegion
	}

	num, err := phonenumbers.Parse(raw, strings.ToUpper(defaultRegion))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", fmt.Errorf("%w: %q has an impossible length", ErrInvalid, raw)
	}

	out := phonenumbers.Format(num, phonenumbers.E164)
	if !IsValidE164(out) {
		return "", fmt.Errorf("%w: %q", ErrInvalid, raw)
	}
	return out, nil
}
