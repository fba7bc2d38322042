package storage

import "errors"

var (
	// ErrNotFound is returned when no record has the requested ID
	ErrNotFound = errors.New("record not found")
	// ErrPositionReferenced is returned when deleting a position other positions follow
	ErrPositionReferenced = errors.New("position is referenced by a later position in its wheel cycle")
)
