package services

import "errors"

// Sentinels returned by the CRUD services. Handlers map them to status codes.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("already exists")
	ErrTierLimit    = errors.New("bot limit reached for free tier")
	ErrUnauthorized = errors.New("invalid credentials")
	ErrUnverified   = errors.New("email not verified")
)
