package common

import "errors"

var (
	ErrDevice            = errors.New("device error")
	ErrOutOfRange        = errors.New("index out of range")
	ErrNotFound          = errors.New("not found")
	ErrFull              = errors.New("no space left")
	ErrInvalidDescriptor = errors.New("invalid descriptor")
	ErrNameTooLong       = errors.New("invalid file name")
	ErrCorrupt           = errors.New("volume is corrupt")
)
