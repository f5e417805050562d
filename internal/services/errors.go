package services

import "errors"

// Error taxonomy shared by all services. Handlers map these onto HTTP
// statuses; everything else is reported as a generic server error.
var (
	// ErrNotFound means the target entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the actor is not allowed to perform the action.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict means a business rule blocks the action (e.g. machine not available).
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput means the request itself is malformed (bad dates, missing fields).
	ErrInvalidInput = errors.New("invalid input")
)
