package model

import "errors"

var (
	// ErrNotFound is returned by stores when the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("conflict")
	// ErrDeviceConflict is returned when a device is trusted for another participant.
	ErrDeviceConflict = errors.New("device bound to another participant")
)
