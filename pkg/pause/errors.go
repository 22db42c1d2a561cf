package pause

import "errors"

var (
	// ErrContextNotFound covers missing, completed and expired pause
	// contexts alike. Callers treat it as a normal terminal answer, not a
	// fault.
	ErrContextNotFound = errors.New("pause context not found")

	// ErrAlreadyResolved rejects a resume request against a pause point
	// that already reached a terminal status.
	ErrAlreadyResolved = errors.New("pause point already resolved")

	// ErrExpired rejects a resume request against an expired execution.
	ErrExpired = errors.New("paused execution expired")
)
