package fleetdb

import (
	"github.com/hupe1980/fleetdb/store"
)

var (
	// ErrInvalidMagic is returned by Open for a file that is not a fleet
	// database.
	ErrInvalidMagic = store.ErrInvalidMagic
	// ErrInvalidVersion is returned by Open for an unsupported format
	// version.
	ErrInvalidVersion = store.ErrInvalidVersion
)
