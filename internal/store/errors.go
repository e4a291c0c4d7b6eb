package store

import "errors"

// ErrNotFound is returned by lookups for rows that do not exist.
// Callers branch with errors.Is.
var ErrNotFound = errors.New("store: not found")
