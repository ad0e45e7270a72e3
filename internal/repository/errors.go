package repository

import "errors"

// ErrNotFound indicates the requested record does not exist. Callers rely on
// it to tell absence apart from an I/O fault, which drives the fail-secure
// behaviour of the services above.
var ErrNotFound = errors.New("repository: not found")
