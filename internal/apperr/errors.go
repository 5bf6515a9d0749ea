package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid input")
	ErrBusy          = errors.New("busy")
	ErrTransient     = errors.New("transient network failure")
	ErrSignDeclined  = errors.New("signing declined")
	ErrCrypto        = errors.New("encryption failure")
	ErrDecode        = errors.New("malformed payload")
)
