package storage

import "errors"

// Storage errors.
var (
	// ErrDuplicateKey is returned when a record with the same key already exists.
	// Trade writers treat it as success: the id is the deduplication key.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
