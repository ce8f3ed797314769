package store

import "errors"

var (
	// ErrInvalidMagic is returned when opening a file that is not a fleet
	// database.
	ErrInvalidMagic = errors.New("invalid magic tag")
	// ErrInvalidVersion is returned for an unsupported format version.
	ErrInvalidVersion = errors.New("unsupported format version")
)
