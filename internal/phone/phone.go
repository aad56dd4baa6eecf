// Package phone canonicalizes user-entered phone numbers into E.164 form.
package phone

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalid is returned by Canonical when the normalized number is not E.164.
var ErrInvalid = errors.New("invalid phone number format")

var e164 = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// Normalize converts raw input into its canonical representation. The result is
// not guaranteed to be valid; use Canonical (or IsValid) before trusting it.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	digits := stripNonDigits(raw)
	switch {
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	case len(digits) == 10:
		return "+1" + digits
	case strings.HasPrefix(raw, "+"):
		return raw
	default:
		return "+" + digits
	}
}

// IsValid reports whether s is a canonical E.164 number.
func IsValid(s string) bool {
	return e164.MatchString(s)
}

// Canonical normalizes raw and rejects anything that does not validate.
func Canonical(raw string) (string, error) {
	n := Normalize(raw)
	if !IsValid(n) {
		return "", ErrInvalid
	}
	return n, nil
}

// Mask hides the middle of a number for logs and display, e.g. +1***-***-4567.
func Mask(s string) string {
	if len(s) < 4 {
		return s
	}
	if len(s) > 6 {
		return s[:2] + "***-***-" + s[len(s)-4:]
	}
	return s[:2] + "***" + s[len(s)-2:]
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
