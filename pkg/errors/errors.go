// Package errors defines the typed error taxonomy used across mcpmux.
//
// Every error raised by the controller, the backends, or the router is a
// *Error carrying a stable Type so callers can branch on failure category
// with errors.As/the Is* helpers below without string-matching messages.
package errors

import "fmt"

// Type identifies an error category from the proxy's error taxonomy.
type Type string

// Error categories, one per spec.md §7 taxonomy entry.
const (
	ErrConfig              Type = "config"
	ErrDuplicateName       Type = "duplicate_name"
	ErrStartup             Type = "startup"
	ErrBackendStartFailed  Type = "backend_start_failed"
	ErrBackendTimeout      Type = "backend_timeout"
	ErrBackendProtocol     Type = "backend_protocol_error"
	ErrClientProtocol      Type = "client_protocol_error"
	ErrAccessDenied        Type = "access_denied"
	ErrInterceptorBlock    Type = "interceptor_block"
	ErrInternal            Type = "internal"
)

// Error is the concrete error type raised throughout mcpmux.
type Error struct {
	Type    Type
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an *Error of the given type.
func NewError(t Type, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// NewConfigError builds a config-category error.
func NewConfigError(message string, cause error) *Error {
	return NewError(ErrConfig, message, cause)
}

// NewDuplicateNameError builds a duplicate-name error (register on an
// already-registered backend name).
func NewDuplicateNameError(message string, cause error) *Error {
	return NewError(ErrDuplicateName, message, cause)
}

// NewStartupError builds a startup-category error.
func NewStartupError(message string, cause error) *Error {
	return NewError(ErrStartup, message, cause)
}

// NewBackendStartFailedError builds a backend-start-failed error.
func NewBackendStartFailedError(message string, cause error) *Error {
	return NewError(ErrBackendStartFailed, message, cause)
}

// NewBackendTimeoutError builds a backend-timeout error.
func NewBackendTimeoutError(message string, cause error) *Error {
	return NewError(ErrBackendTimeout, message, cause)
}

// NewBackendProtocolError builds a backend-protocol-error.
func NewBackendProtocolError(message string, cause error) *Error {
	return NewError(ErrBackendProtocol, message, cause)
}

// NewClientProtocolError builds a client-protocol-error.
func NewClientProtocolError(message string, cause error) *Error {
	return NewError(ErrClientProtocol, message, cause)
}

// NewAccessDeniedError builds an access-denied error.
func NewAccessDeniedError(message string, cause error) *Error {
	return NewError(ErrAccessDenied, message, cause)
}

// NewInterceptorBlockError builds an interceptor-block error.
func NewInterceptorBlockError(message string, cause error) *Error {
	return NewError(ErrInterceptorBlock, message, cause)
}

// NewInternalError builds an internal error.
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

func is(err error, t Type) bool {
	e, ok := err.(*Error)
	if !ok || e == nil {
		return false
	}
	return e.Type == t
}

// IsConfig reports whether err is a config-category *Error.
func IsConfig(err error) bool { return is(err, ErrConfig) }

// IsDuplicateName reports whether err is a duplicate-name *Error.
func IsDuplicateName(err error) bool { return is(err, ErrDuplicateName) }

// IsStartup reports whether err is a startup-category *Error.
func IsStartup(err error) bool { return is(err, ErrStartup) }

// IsBackendStartFailed reports whether err is a backend-start-failed *Error.
func IsBackendStartFailed(err error) bool { return is(err, ErrBackendStartFailed) }

// IsBackendTimeout reports whether err is a backend-timeout *Error.
func IsBackendTimeout(err error) bool { return is(err, ErrBackendTimeout) }

// IsBackendProtocol reports whether err is a backend-protocol-error *Error.
func IsBackendProtocol(err error) bool { return is(err, ErrBackendProtocol) }

// IsClientProtocol reports whether err is a client-protocol-error *Error.
func IsClientProtocol(err error) bool { return is(err, ErrClientProtocol) }

// IsAccessDenied reports whether err is an access-denied *Error.
func IsAccessDenied(err error) bool { return is(err, ErrAccessDenied) }

// IsInterceptorBlock reports whether err is an interceptor-block *Error.
func IsInterceptorBlock(err error) bool { return is(err, ErrInterceptorBlock) }

// IsInternal reports whether err is an internal *Error.
func IsInternal(err error) bool { return is(err, ErrInternal) }
