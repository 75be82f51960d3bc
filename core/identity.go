package core

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Limits applied to caller-supplied identifiers and message text.
// These match the public API contract; the engine enforces them again
// so library callers get the same guarantees as HTTP callers.
const (
	MaxOwnerIDLength   = 100
	MaxSessionIDLength = 100
	MaxMessageLength   = 5000
)

// ErrInvalidOwnerScope is returned when a request carries a missing or
// malformed owner identifier. Scope checks run before any store call.
var ErrInvalidOwnerScope = errors.New("invalid owner scope")

// ErrInvalidMessage is returned when the message text is empty or
// exceeds MaxMessageLength.
var ErrInvalidMessage = errors.New("invalid message")

// ValidateOwnerID checks that id is a usable isolation key: non-empty
// after trimming, at most MaxOwnerIDLength characters, and drawn from
// letters, digits, underscore, and hyphen. Owner identifiers end up in
// store collection names and filter payloads, so the alphabet is kept
// deliberately narrow.
func ValidateOwnerID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("%w: owner id is required and cannot be empty", ErrInvalidOwnerScope)
	}
	if trimmed != id {
		return fmt.Errorf("%w: owner id must not contain leading or trailing whitespace", ErrInvalidOwnerScope)
	}
	if len(id) > MaxOwnerIDLength {
		return fmt.Errorf("%w: owner id exceeds %d characters", ErrInvalidOwnerScope, MaxOwnerIDLength)
	}
	for _, r := range id {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return fmt.Errorf("%w: owner id contains disallowed character %q", ErrInvalidOwnerScope, r)
		}
	}
	return nil
}

// ValidateSessionID checks an optional session identifier. Empty is
// valid (records are stored ungrouped); non-empty values follow the
// same alphabet rules as owner ids.
func ValidateSessionID(id string) error {
	if id == "" {
		return nil
	}
	if len(id) > MaxSessionIDLength {
		return fmt.Errorf("%w: session id exceeds %d characters", ErrInvalidOwnerScope, MaxSessionIDLength)
	}
	for _, r := range id {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return fmt.Errorf("%w: session id contains disallowed character %q", ErrInvalidOwnerScope, r)
		}
	}
	return nil
}

// ValidateMessage checks that the message text is non-blank and within
// the size limit. Content beyond that is never rejected here; an odd or
// unclassifiable message still gets a reply via the general plan.
func ValidateMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return fmt.Errorf("%w: message is required and cannot be empty", ErrInvalidMessage)
	}
	if len(msg) > MaxMessageLength {
		return fmt.Errorf("%w: message exceeds %d characters", ErrInvalidMessage, MaxMessageLength)
	}
	return nil
}
