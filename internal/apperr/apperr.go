// Package apperr holds the machine-readable error codes returned to API
// callers and the error type that carries them out of the services.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable identifier surfaced as error_code in responses.
type Code string

const (
	DailyLimitExceeded  Code = "DAILY_LIMIT_EXCEEDED"
	ResendLimitExceeded Code = "RESEND_LIMIT_EXCEEDED"

	ActiveOtpExists     Code = "ACTIVE_OTP_EXISTS"
	NoActiveOtp         Code = "NO_ACTIVE_OTP"
	InvalidOtp          Code = "INVALID_OTP"
	MaxAttemptsExceeded Code = "MAX_ATTEMPTS_EXCEEDED"
	OtpNotVerified      Code = "OTP_NOT_VERIFIED"
	OtpExpired          Code = "OTP_EXPIRED"
	AlreadyCancelled    Code = "ALREADY_CANCELLED"
	AlreadyCompleted    Code = "ALREADY_COMPLETED"

	APIKeyNotFound    Code = "API_KEY_NOT_FOUND"
	NoAPIKey          Code = "NO_API_KEY"
	NoDefaultLocation Code = "NO_DEFAULT_LOCATION"
	FetchFailed       Code = "FETCH_FAILED"

	SendFailed   Code = "SEND_FAILED"
	ResendFailed Code = "RESEND_FAILED"

	InvalidDate       Code = "INVALID_DATE"
	InvalidDateFormat Code = "INVALID_DATE_FORMAT"
	NotFound          Code = "NOT_FOUND"
	CreateFailed      Code = "CREATE_FAILED"
	CancelFailed      Code = "CANCEL_FAILED"
	StoreFailed       Code = "STORE_FAILED"
	UpdateFailed      Code = "UPDATE_FAILED"
	DeleteFailed      Code = "DELETE_FAILED"

	ValidationError Code = "VALIDATION_ERROR"
	Unauthorized    Code = "UNAUTHORIZED"
	TooManyRequests Code = "TOO_MANY_REQUESTS"
	ServerError     Code = "SERVER_ERROR"
)

// Error is a business failure with a code the caller can branch on.
// Details carries extra response fields such as remaining_attempts.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Error without details.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// With returns a copy of e carrying one more detail field.
func (e *Error) With(key string, value any) *Error {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{Code: e.Code, Message: e.Message, Details: details}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// CodeOf returns the code of err, or ServerError for foreign errors.
func CodeOf(err error) Code {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return ServerError
}

// HTTPStatus maps a code to the response status used by the API.
func HTTPStatus(code Code) int {
	switch code {
	case NotFound:
		return 404
	case Unauthorized:
		return 401
	case TooManyRequests:
		return 429
	case ValidationError:
		return 422
	case ServerError:
		return 500
	default:
		return 400
	}
}
