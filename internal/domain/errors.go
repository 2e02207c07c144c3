package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrNoOpportunity  = errors.New("no profitable opportunity found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrLockHeld       = errors.New("lock already held")
	ErrConfirmTimeout = errors.New("transaction confirmation timed out")
	ErrDuplicate      = errors.New("duplicate request")
)
