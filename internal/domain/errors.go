package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient fetch failure")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrSessionAbsent = errors.New("no stored session")
	ErrNoSnapshot    = errors.New("no analysis snapshot")
)
