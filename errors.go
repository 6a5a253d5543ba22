package tracebuf

import "errors"

var (
	// ErrMissingCredential is returned by New when no credential is given.
	ErrMissingCredential = errors.New("credential is required")
)
