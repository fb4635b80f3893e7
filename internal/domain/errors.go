package domain

import "errors"

// Failure kinds surfaced by the services. Callers match them with errors.Is;
// wrapped detail is for logs only.
var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrEmailNotFound      = errors.New("email not registered")
	ErrNoAvailability     = errors.New("no parcels available for those dates")
	ErrNotFound           = errors.New("not found")
	ErrDispatch           = errors.New("email dispatch failed")
	ErrPersistence        = errors.New("persistence error")
	ErrInvalidInput       = errors.New("invalid input")
)
