package services

import "errors"

type ErrorCode string

const (
	ErrorCodeInvalidPhone     ErrorCode = "invalid_phone"
	ErrorCodeNotFound         ErrorCode = "not_found"
	ErrorCodePermissionDenied ErrorCode = "permission_denied"
	ErrorCodeTransport        ErrorCode = "transport_failure"
	ErrorCodeConflict         ErrorCode = "conflict"
	ErrorCodeValidation       ErrorCode = "validation_error"
	ErrorCodeInternal         ErrorCode = "internal_error"
)

// Error is the typed failure returned across the engine boundary. Message is
// short and safe to show to an operator.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of a wrapped *Error, or internal for anything else.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrorCodeInternal
}

func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
