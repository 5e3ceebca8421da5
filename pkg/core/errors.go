package core

import "errors"

// Common errors.
var (
	ErrClosed       = errors.New("canvas session is closed")
	ErrNotFound     = errors.New("not found")
	ErrNotConnected = errors.New("transport is not connected")
	ErrInvalidNode  = errors.New("invalid node")
)
