package repository

import "errors"

// Sentinel failures shared by the repositories. The HTTP boundary collapses
// the refresh-token cases into one generic response; the distinction exists so
// the service layer can log reuse as a security event.
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrExpired        = errors.New("refresh token expired")
	ErrReuseDetected  = errors.New("refresh token reuse detected")
)
