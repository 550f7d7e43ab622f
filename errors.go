// errors.go: Error codes shared by every hestia component
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	stderrors "errors"

	"github.com/agilira/go-errors"
)

// Error codes for hestia operations
const (
	ErrCodeKeyNotFound       = "HESTIA_KEY_NOT_FOUND"
	ErrCodeTypeNotRegistered = "HESTIA_TYPE_NOT_REGISTERED"
	ErrCodeConversionFailed  = "HESTIA_CONVERSION_FAILED"
	ErrCodeValueNotAllowed   = "HESTIA_VALUE_NOT_ALLOWED"
	ErrCodeInvalidSpec       = "HESTIA_INVALID_SPEC"
	ErrCodeFileIO            = "HESTIA_FILE_IO"
	ErrCodeCallbackFailed    = "HESTIA_CALLBACK_FAILED"
	ErrCodeInvalidConfig     = "HESTIA_INVALID_CONFIG"
	ErrCodeWatcherBusy       = "HESTIA_WATCHER_BUSY"
	ErrCodeWatcherStopped    = "HESTIA_WATCHER_STOPPED"
	ErrCodeFileNotFound      = "HESTIA_FILE_NOT_FOUND"
)

// ErrorCode returns the hestia error code carried by err, or "" if err
// carries none. Wrapped errors are inspected through the Unwrap chain.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var coder errors.ErrorCoder
	if stderrors.As(err, &coder) {
		return string(coder.ErrorCode())
	}
	return ""
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
