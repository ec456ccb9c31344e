package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidOrder       = errors.New("invalid order parameters")
	ErrInsufficientMargin = errors.New("insufficient free margin")
	ErrContextDone        = errors.New("context cancelled")
	ErrLockHeld           = errors.New("lock already held")
	ErrConflict           = errors.New("conflicting state transition")
)
