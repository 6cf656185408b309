package auth

import "errors"

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrNotOwner rejects an instrumentist touching another instrumentist's records.
	ErrNotOwner = errors.New("auth: not the owning instrumentist")
)
