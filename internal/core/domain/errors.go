package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks caller mistakes that map to 400 responses.
	ErrInvalidInput = errors.New("invalid input")
)
