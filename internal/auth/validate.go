package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinPasswordLen = 8
	MinNameLen     = 2
	MaxNameLen     = 50
)

var (
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	nameRe  = regexp.MustCompile(`^[\p{L} ]+$`)
)

// NormalizeEmail lower-cases and trims an address. Emails are compared
// case-insensitively everywhere.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateEmail expects an already normalized address.
func ValidateEmail(email string) error {
	if email == "" {
		return invalid("email", "is required")
	}
	if len(email) > 254 || !emailRe.MatchString(email) {
		return invalid("email", "is not a valid address")
	}
	return nil
}

func ValidateName(name string) error {
	n := utf8.RuneCountInString(name)
	switch {
	case n == 0:
		return invalid("name", "is required")
	case n < MinNameLen || n > MaxNameLen:
		return invalid("name", "must be between 2 and 50 characters")
	case !nameRe.MatchString(name):
		return invalid("name", "may only contain letters and spaces")
	}
	return nil
}

func ValidatePassword(pw string) error {
	switch {
	case pw == "":
		return invalid("password", "is required")
	case len(pw) < MinPasswordLen:
		return invalid("password", "must be at least 8 characters")
	case len(pw) > MaxPasswordBytes:
		return invalid("password", "must be at most 72 bytes")
	}
	return nil
}
