package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrCircuitOpen   = errors.New("circuit breaker open")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock already held")
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")
	ErrOutOfDomain   = errors.New("value outside declared domain")
)
