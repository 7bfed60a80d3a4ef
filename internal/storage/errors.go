package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting a record whose key
	// (id or transaction signature) already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned by conditional saves when the stored version
	// no longer matches: another writer modified the record first.
	// Callers must re-read and re-decide, never overwrite.
	ErrConflict = errors.New("conflict: record modified concurrently")
)
