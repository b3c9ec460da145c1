package errors

import "errors"

// Configuration errors.
var (
	ErrNotConfigured  = errors.New("not configured")
	ErrInvalidSetting = errors.New("invalid setting")
)

// Local file errors.
var (
	ErrIO = errors.New("file could not be read")
)

// Server/transport errors.
var (
	ErrTransport = errors.New("transfer failed")
	ErrServer    = errors.New("server error")
)
