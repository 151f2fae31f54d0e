package model

import "errors"

// Failure taxonomy shared by every component. Components return these
// sentinels (usually wrapped with fmt.Errorf and %w); only the HTTP handler
// translates them into transport responses.
var (
	// ErrInvalidInput marks client-correctable validation failures.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyExists is returned when creating a user whose identity is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound is returned when a requested record is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials covers both unknown identity and wrong secret,
	// deliberately indistinguishable to prevent account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken marks malformed, forged, or expired bearer tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrAlreadyTerminal is returned by exam operations on a finished session.
	ErrAlreadyTerminal = errors.New("exam session already finished")

	// ErrForbidden is returned when a valid token acts on another user's session.
	ErrForbidden = errors.New("forbidden")

	// ErrStoreUnavailable marks infrastructure failures; callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)
