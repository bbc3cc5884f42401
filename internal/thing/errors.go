package thing

import "errors"

var (
	// ErrNotFound is returned when a thing does not exist in the registry.
	ErrNotFound = errors.New("thing not found")

	// ErrExists is returned when creating a thing whose ID is taken.
	ErrExists = errors.New("thing already exists")

	// ErrInvalidID is returned for empty or malformed thing IDs.
	ErrInvalidID = errors.New("invalid thing id")
)
