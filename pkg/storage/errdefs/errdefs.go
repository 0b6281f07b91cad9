// Package errdefs holds the errors shared by all object store backends.
package errdefs

import "errors"

// ErrNotFound is wrapped by every backend when a key does not exist.
var ErrNotFound = errors.New("object not found")
