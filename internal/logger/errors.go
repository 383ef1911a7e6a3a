// Package logger provides structured logging for the application.
package logger

import "errors"

// ErrInvalidFields is returned when logging fields are not key-value pairs.
var ErrInvalidFields = errors.New("invalid fields: must be key-value pairs")
