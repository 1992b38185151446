package repository

import "errors"

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds is returned when a debit would drive a balance
	// counter negative. The debit is rejected, never clipped.
	ErrInsufficientFunds = errors.New("insufficient coins")

	// ErrInvalidTransition is returned when a state machine update finds the
	// row in a status the transition does not accept.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicateEvent is returned when a payment event id was already
	// recorded. The surrounding transaction must be rolled back.
	ErrDuplicateEvent = errors.New("payment event already processed")
)
