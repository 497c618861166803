package storage

import "errors"

// ErrNotFound is returned when a transaction or insight document does not
// exist. Callers treat absent insight documents as a cache miss, not a
// failure.
var ErrNotFound = errors.New("not found")
