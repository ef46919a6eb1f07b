package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrInvalidKey is returned when a store key or record id is blank.
	ErrInvalidKey = errors.New("repository: invalid key")
	// ErrPermissionDenied indicates the access policy rejected the read or write.
	ErrPermissionDenied = errors.New("repository: permission denied")
)
