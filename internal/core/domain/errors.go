package domain

import "errors"

// Failure taxonomy shared by the service and the storage adapters. Callers
// match with errors.Is; no failure path leaves a partial state change behind.
var (
	ErrInvalidRequest           = errors.New("missing required request fields")
	ErrInvalidQuantity          = errors.New("quantity must be a positive integer")
	ErrInvalidHardwareName      = errors.New("hardware name must be 3 to 100 characters")
	ErrInvalidCapacity          = errors.New("total capacity must be between 1 and 10000")
	ErrHardwareNotFound         = errors.New("hardware set not found")
	ErrHardwareExists           = errors.New("hardware set already exists")
	ErrProjectNotFound          = errors.New("project not found")
	ErrNotProjectMember         = errors.New("user is not a member of the project")
	ErrInsufficientAvailability = errors.New("insufficient hardware available")
	ErrOverRelease              = errors.New("cannot release more than checked out")
	ErrNoActiveCheckout         = errors.New("no active checkout for this hardware")
	ErrCapacityBelowCheckout    = errors.New("capacity cannot be less than checked out units")
	ErrConcurrencyConflict      = errors.New("concurrent update conflict")
)
