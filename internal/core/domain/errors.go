package domain

import "errors"

var (
	// ErrInvalidArgument indicates malformed value-object input or a bad method argument.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidState indicates the aggregate's lifecycle state forbids the requested operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotFound indicates a lookup yielded nothing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateResource indicates a uniqueness violation (e.g. email already registered).
	ErrDuplicateResource = errors.New("duplicate resource")
	// ErrInvalidToken indicates a token failed signature, claim, or type checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token is well-formed but past its expiry.
	ErrExpiredToken = errors.New("token expired")
)
