// Package common defines shared constants and sentinel errors used across
// AuthGate components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("update conflict")

	// Collaborator (record store / cache) failures. Never retried here;
	// surfaced as an opaque internal error to callers.
	ErrStorage = errors.New("storage failure")

	// Malformed client input (bad session id syntax, missing header).
	ErrValidation = errors.New("validation error")

	// Uniform credential/session verification failure. Deliberately
	// non-distinguishing; the audit log carries the real reason.
	ErrAuthFailure = errors.New("authentication failure")

	// Live credential lacking a required scope.
	ErrNoPermission = errors.New("no permission")

	// Token codec errors. The engine folds all three into ErrAuthFailure
	// before anything leaves the core.
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("malformed token")
)
