package service

import "errors"

var (
	// ErrValidation marks caller mistakes in the request payload.
	ErrValidation = errors.New("invalid request")

	// ErrBanned rejects write operations from banned accounts.
	ErrBanned = errors.New("account is banned")
)
