package constant

import "errors"

var (
	ErrUnsupportedScheme = errors.New("unsupported device address scheme")
	ErrNotConnected      = errors.New("session not connected")
	ErrLoginRejected     = errors.New("login rejected")
	ErrRequestTimeout    = errors.New("request timed out")
	ErrUnknownTag        = errors.New("unknown tag")
	ErrSinkClosed        = errors.New("output sink closed")
	ErrSinkLocked        = errors.New("output file locked by another process")
	ErrFloatProfile      = errors.New("invalid float resolution profile")
)
