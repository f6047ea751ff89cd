// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// auth service and the handlers to distinguish between different failure
// scenarios without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
// Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned by account creation when the (normalized)
// email is already registered.
var ErrEmailExists = errors.New("email already exists")

// ErrLastAdmin is returned when a delete, demotion or deactivation would
// leave the system without an active admin account.
var ErrLastAdmin = errors.New("operation would remove the last admin")

// ErrConflict is returned when a unique value such as an object key is
// reused, or when a compare-and-set update keeps losing to concurrent
// writers and gives up.
var ErrConflict = errors.New("conflict")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrLimitReached is returned when an artist already owns the maximum
// number of artworks the platform settings allow.
var ErrLimitReached = errors.New("artwork limit reached")
