package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrSessionLimitReached is returned by Insert when the user already
	// holds the maximum number of refresh sessions.
	ErrSessionLimitReached = errors.New("refresh session limit reached")
)
