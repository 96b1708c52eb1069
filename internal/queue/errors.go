package queue

import (
	"errors"
	"fmt"
)

// ErrorCode categorises queue errors.
type ErrorCode string

const (
	// ErrCodeStorageUnavailable indicates the store cannot be opened or written.
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	// ErrCodeTransient indicates a network error, timeout or 5xx during replay.
	ErrCodeTransient ErrorCode = "TRANSIENT_NETWORK_FAILURE"

	// ErrCodePermanentRejection indicates a 4xx that retrying will not fix.
	ErrCodePermanentRejection ErrorCode = "PERMANENT_REJECTION"

	// ErrCodeSerialization indicates the request could not be captured.
	ErrCodeSerialization ErrorCode = "SERIALIZATION_FAILURE"
)

// Error is the structured error returned by queue components.
type Error struct {
	Code    ErrorCode
	Message string

	// ID identifies the affected entry, when there is one.
	ID string

	// Status is the HTTP status for replay outcomes (0 if none).
	Status int

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ID != "" {
		msg = fmt.Sprintf("%s (id=%s)", msg, e.ID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewStorageUnavailable wraps a storage failure.
func NewStorageUnavailable(op string, err error) *Error {
	return &Error{Code: ErrCodeStorageUnavailable, Message: op, Err: err}
}

// NewSerializationFailure reports a request that cannot be snapshotted.
func NewSerializationFailure(message string, err error) *Error {
	return &Error{Code: ErrCodeSerialization, Message: message, Err: err}
}

// NewTransient reports a replay failure that may succeed later.
func NewTransient(id string, status int, err error) *Error {
	msg := "replay failed"
	if status != 0 {
		msg = fmt.Sprintf("replay failed with status %d", status)
	}
	return &Error{Code: ErrCodeTransient, Message: msg, ID: id, Status: status, Err: err}
}

// NewPermanentRejection reports a replay the server refused for good.
func NewPermanentRejection(id string, status int) *Error {
	return &Error{
		Code:    ErrCodePermanentRejection,
		Message: fmt.Sprintf("server rejected replay with status %d", status),
		ID:      id,
		Status:  status,
	}
}

func hasCode(err error, code ErrorCode) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code == code
	}
	return false
}

// IsStorageUnavailable reports whether err is a storage failure.
func IsStorageUnavailable(err error) bool { return hasCode(err, ErrCodeStorageUnavailable) }

// IsSerializationFailure reports whether err is a capture failure.
func IsSerializationFailure(err error) bool { return hasCode(err, ErrCodeSerialization) }

// IsTransient reports whether err is a retryable replay failure.
func IsTransient(err error) bool { return hasCode(err, ErrCodeTransient) }

// IsPermanentRejection reports whether err is a permanent replay rejection.
func IsPermanentRejection(err error) bool { return hasCode(err, ErrCodePermanentRejection) }
