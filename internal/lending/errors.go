package lending

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("no copies available")
	ErrConflict     = errors.New("member already has this book checked out")
	ErrInvalidState = errors.New("not an active checkout")
	ErrForbidden    = errors.New("not allowed")
	ErrValidation   = errors.New("invalid request")
	ErrTransient    = errors.New("resource busy, try again")
)
