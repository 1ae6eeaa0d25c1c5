package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorClass buckets provider failures by how the caller should react:
// back off the credential, replace it, or just retry.
type ErrorClass string

const (
	// ClassQuotaOrRate marks quota exhaustion or rate limiting. The
	// credential is backed off briefly; the window will roll over.
	ClassQuotaOrRate ErrorClass = "QUOTA_OR_RATE"

	// ClassAuth marks rejected credentials. The key is backed off for a
	// long time; it is likely revoked or misconfigured.
	ClassAuth ErrorClass = "AUTH"

	// ClassTransient marks everything else: 5xx, transport errors, empty
	// responses. Worth retrying on any credential.
	ClassTransient ErrorClass = "TRANSIENT"
)

// Error is a classified provider failure. Raw upstream errors never leave
// this package unclassified.
type Error struct {
	Class ErrorClass
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider: %s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ClassOf extracts the class from a classified error, defaulting to
// TRANSIENT for anything else.
func ClassOf(err error) ErrorClass {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassTransient
}

// Classify buckets an upstream failure from its HTTP status and message.
// Message matching mirrors the upstream API's wording: quota and rate
// problems mention "quota" or "rate", credential problems mention
// "invalid" or "unauthorized".
func Classify(status int, message string) ErrorClass {
	msg := strings.ToLower(message)
	switch {
	case status == http.StatusTooManyRequests,
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "rate"):
		return ClassQuotaOrRate
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		strings.Contains(msg, "invalid"),
		strings.Contains(msg, "unauthorized"):
		return ClassAuth
	default:
		return ClassTransient
	}
}

func classified(status int, err error) *Error {
	return &Error{Class: Classify(status, err.Error()), Err: err}
}

func transient(err error) *Error {
	return &Error{Class: ClassTransient, Err: err}
}
