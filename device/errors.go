package device

import "errors"

var (
	ErrNotReady           = errors.New("device: context not initialized")
	ErrAlreadyInitialized = errors.New("device: context already initialized")
	ErrInvalidHandle      = errors.New("device: invalid handle")
	ErrUninitialized      = errors.New("device: object not initialized")
	ErrInvalidQueue       = errors.New("device: invalid command queue index")
	ErrUnsupported        = errors.New("device: operation not supported by backend")
	ErrArgNotSet          = errors.New("device: kernel argument not set")
	ErrUnsupportedArg     = errors.New("device: unsupported kernel argument type")
	ErrNotSlice           = errors.New("device: host data must be a slice")
	ErrOutOfBounds        = errors.New("device: access out of buffer bounds")
)
