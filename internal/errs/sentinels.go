// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across gateway/store/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSessionNotFound indicates the addressed chat session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrFavoriteNotFound indicates the addressed favorite does not exist.
	ErrFavoriteNotFound = errors.New("favorite not found")

	// ErrNoActiveSession indicates a store operation that needs an active
	// session was called while no session exists locally.
	ErrNoActiveSession = errors.New("no active session")

	// ErrUnauthorized indicates failed authentication/authorization (401).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")
)
