package services

import "errors"

// Business outcomes reported by the user operations. These are expected
// results of conditioned writes, not server errors.
var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
)
