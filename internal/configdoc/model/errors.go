package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the document or backup does not exist. On load it is
	// the normal first-run signal.
	ErrNotFound       = errors.New("not found")
	ErrInvalidName    = errors.New("invalid backup filename")
	ErrInvalidRequest = errors.New("invalid request")
	ErrAlreadyExists  = errors.New("already exists")
	ErrReadFailure    = errors.New("read failure")
	ErrWriteFailure   = errors.New("write failure")
	ErrResetFailure   = errors.New("reset failure")
)

// ErrNoDocument is the ErrNotFound returned when a whole configuration
// document is absent, as opposed to an entry or backup inside it.
var ErrNoDocument = fmt.Errorf("%w: no such document", ErrNotFound)
