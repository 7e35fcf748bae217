package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	// ErrTimeConflict is raised by a store that enforces non-overlap itself
	// when a write would overlap an existing booking.
	ErrTimeConflict = errors.New("booking time conflicts with existing booking")

	ErrInvalidTimeRange = errors.New("end time must be after start time")
)
