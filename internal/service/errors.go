package service

import "errors"

var (
	// ErrUnauthorized is the single opaque failure for every validation
	// branch: bad signature, expired or inactive record, malformed or
	// out-of-scope subject, unknown account. Which check failed is logged,
	// never surfaced.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned by the login flow for any
	// credential mismatch, never distinguishing which part was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidation covers empty or malformed registration input.
	ErrValidation = errors.New("validation failed")
)
