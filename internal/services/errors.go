// internal/services/errors.go
package services

import "errors"

// Sentinel errors the HTTP layer maps onto status codes. Domain-invariant
// violations are prevented by pre-condition checks, not caught after the fact,
// so these cover the remaining taxonomy: bad input, missing rows, conflicts.
var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyExists      = errors.New("already exists")
	ErrAlreadyCompleted   = errors.New("habit already completed today")
)
