// Package validation provides input validation for API requests.
package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxDisplayNameLength = 50
	maxContentLength     = 500
	maxSessionIDLength   = 100
	maxFingerprintLength = 128
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail checks that the string is a plausible email address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email is required")
	}
	if len(email) > 254 {
		return errors.New("email is too long")
	}
	if !emailRegex.MatchString(email) {
		return errors.New("email format is invalid")
	}
	return nil
}

// ValidateDisplayName checks display name constraints.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("display name cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		return errors.New("display name must be 50 characters or fewer")
	}
	return nil
}

// ValidateQuestionContent checks question content constraints.
func ValidateQuestionContent(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return errors.New("question content cannot be empty")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return errors.New("question content must be 500 characters or fewer")
	}
	return nil
}

// ValidateSessionID checks the session identifier.
func ValidateSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("session ID is required")
	}
	if len(sessionID) > maxSessionIDLength {
		return errors.New("session ID is too long")
	}
	return nil
}

// ValidateFingerprint checks the anonymous device fingerprint.
func ValidateFingerprint(fp string) error {
	fp = strings.TrimSpace(fp)
	if fp == "" {
		return errors.New("fingerprint is required")
	}
	if len(fp) < 8 {
		return errors.New("fingerprint is too short")
	}
	if len(fp) > maxFingerprintLength {
		return errors.New("fingerprint is too long")
	}
	return nil
}
