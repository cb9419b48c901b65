package storage

import "errors"

// ErrNotFound is returned when no open or archived record has the requested slug.
var ErrNotFound = errors.New("position not found")
