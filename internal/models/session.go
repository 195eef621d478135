// Package models defines the session context passed into flow instances.
package models

import "strings"

// SessionContext carries the user identity for a flow instance. It is provided
// explicitly at construction time; the engine never reads identity from ambient
// or global storage.
type SessionContext struct {
	PhoneNumber string
}

// NewSessionContext normalizes and validates a raw phone number into a session
// context. Non-digit characters are stripped; the result must be a 10-digit
// Indian mobile number starting with 6-9.
func NewSessionContext(rawPhone string) (SessionContext, error) {
	phone := NormalizePhoneNumber(rawPhone)
	if !IsValidPhoneNumber(phone) {
		return SessionContext{}, ErrInvalidPhoneNumber
	}
	return SessionContext{PhoneNumber: phone}, nil
}

// NormalizePhoneNumber strips every non-digit character from the input.
func NormalizePhoneNumber(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidPhoneNumber reports whether phone is a 10-digit mobile number with a
// valid leading digit.
func IsValidPhoneNumber(phone string) bool {
	if len(phone) != 10 {
		return false
	}
	if phone[0] < '6' || phone[0] > '9' {
		return false
	}
	for i := 0; i < len(phone); i++ {
		if phone[i] < '0' || phone[i] > '9' {
			return false
		}
	}
	return true
}
