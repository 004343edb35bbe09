package errors

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err: &Error{
				Type:    ErrConfig,
				Message: "test message",
				Cause:   errors.New("underlying error"),
			},
			want: "config: test message: underlying error",
		},
		{
			name: "error without cause",
			err: &Error{
				Type:    ErrInternal,
				Message: "test message",
				Cause:   nil,
			},
			want: "internal: test message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &Error{Type: ErrInternal, Message: "test message", Cause: cause}

	if got := err.Unwrap(); got != cause {
		t.Errorf("Error.Unwrap() = %v, want %v", got, cause)
	}

	errNoCause := &Error{Type: ErrInternal, Message: "test message", Cause: nil}
	if got := errNoCause.Unwrap(); got != nil {
		t.Errorf("Error.Unwrap() = %v, want nil", got)
	}
}

func TestNewError(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewError(ErrConfig, "test message", cause)

	if err.Type != ErrConfig {
		t.Errorf("NewError().Type = %v, want %v", err.Type, ErrConfig)
	}
	if err.Message != "test message" {
		t.Errorf("NewError().Message = %v, want %v", err.Message, "test message")
	}
	if err.Cause != cause {
		t.Errorf("NewError().Cause = %v, want %v", err.Cause, cause)
	}
}

func TestNewErrorConstructors(t *testing.T) {
	cause := errors.New("cause")

	tests := []struct {
		name        string
		constructor func(string, error) *Error
		wantType    Type
	}{
		{"NewConfigError", NewConfigError, ErrConfig},
		{"NewDuplicateNameError", NewDuplicateNameError, ErrDuplicateName},
		{"NewStartupError", NewStartupError, ErrStartup},
		{"NewBackendStartFailedError", NewBackendStartFailedError, ErrBackendStartFailed},
		{"NewBackendTimeoutError", NewBackendTimeoutError, ErrBackendTimeout},
		{"NewBackendProtocolError", NewBackendProtocolError, ErrBackendProtocol},
		{"NewClientProtocolError", NewClientProtocolError, ErrClientProtocol},
		{"NewAccessDeniedError", NewAccessDeniedError, ErrAccessDenied},
		{"NewInterceptorBlockError", NewInterceptorBlockError, ErrInterceptorBlock},
		{"NewInternalError", NewInternalError, ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.constructor("test message", cause)
			if err.Type != tt.wantType {
				t.Errorf("%s().Type = %v, want %v", tt.name, err.Type, tt.wantType)
			}
			if err.Message != "test message" {
				t.Errorf("%s().Message = %v, want %v", tt.name, err.Message, "test message")
			}
			if err.Cause != cause {
				t.Errorf("%s().Cause = %v, want %v", tt.name, err.Cause, cause)
			}
		})
	}
}

func TestErrorTypeCheckers(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		checker func(error) bool
		want    bool
	}{
		{"IsConfig with matching error", NewConfigError("test", nil), IsConfig, true},
		{"IsConfig with non-matching error", NewInternalError("test", nil), IsConfig, false},
		{"IsConfig with non-Error type", errors.New("regular error"), IsConfig, false},
		{"IsDuplicateName with matching error", NewDuplicateNameError("test", nil), IsDuplicateName, true},
		{"IsStartup with matching error", NewStartupError("test", nil), IsStartup, true},
		{"IsBackendStartFailed with matching error", NewBackendStartFailedError("test", nil), IsBackendStartFailed, true},
		{"IsBackendTimeout with matching error", NewBackendTimeoutError("test", nil), IsBackendTimeout, true},
		{"IsBackendProtocol with matching error", NewBackendProtocolError("test", nil), IsBackendProtocol, true},
		{"IsClientProtocol with matching error", NewClientProtocolError("test", nil), IsClientProtocol, true},
		{"IsAccessDenied with matching error", NewAccessDeniedError("test", nil), IsAccessDenied, true},
		{"IsInterceptorBlock with matching error", NewInterceptorBlockError("test", nil), IsInterceptorBlock, true},
		{"IsInternal with matching error", NewInternalError("test", nil), IsInternal, true},
		{"IsInternal with nil error", nil, IsInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.checker(tt.err); got != tt.want {
				t.Errorf("%s() = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}
