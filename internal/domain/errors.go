package domain

import "errors"

// Errors returned by store implementations.
var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate key")
	ErrAlreadyAssigned   = errors.New("order already assigned to another driver")
	ErrVersionConflict   = errors.New("order was modified concurrently")
	ErrDriverUnavailable = errors.New("driver is not available")
)
