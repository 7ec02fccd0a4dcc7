package repository

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateUsername indicates a registration raced or repeated an existing username.
	ErrDuplicateUsername = errors.New("username already exists")
)
