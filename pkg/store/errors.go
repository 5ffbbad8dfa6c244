package store

import "errors"

// ErrNotFound is returned when the referenced account does not exist.
var ErrNotFound = errors.New("record not found")
