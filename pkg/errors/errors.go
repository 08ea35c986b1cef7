package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal   = NewError("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)

	// Decode side. None of these are worth retrying: the payload will not
	// become valid by being read again.
	ErrBadPayload          = NewError("BAD_PAYLOAD", "bad json payload", http.StatusBadRequest)
	ErrSchemaViolation     = NewError("SCHEMA_VIOLATION", "payload does not match the senml schema", http.StatusUnprocessableEntity)
	ErrUnknownNamingScheme = NewError("UNKNOWN_NAMING_SCHEME", "unknown naming scheme", http.StatusUnprocessableEntity)

	// Backend side.
	ErrConnectionFailure = NewError("CONNECTION_FAILURE", "failed to connect to backend", http.StatusServiceUnavailable).AsRetryable()
	ErrNotFound          = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrBadRequest        = NewError("BAD_REQUEST", "bad request", http.StatusBadRequest)
	ErrConflict          = NewError("CONFLICT", "resource already exists", http.StatusConflict)
	ErrClient            = NewError("CLIENT_ERROR", "backend request failed", http.StatusInternalServerError)
)

// CauseKey is the Details key holding a structured, human readable cause
// reported by a remote peer.
const CauseKey = "cause"

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code      string
	Message   string
	Status    int
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if reason, ok := e.Details[CauseKey].(string); ok && reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, reason)
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Code so that sentinel comparisons survive WithCause/WithDetail copies.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	if e.Cause != nil {
		var retryableErr RetryableError
		if errors.As(e.Cause, &retryableErr) {
			return retryableErr.IsRetryable()
		}
	}
	return false
}

func (e *Error) IsFatal() bool {
	return !e.IsRetryable()
}

func (e *Error) WithCause(cause error) *Error {
	err := e.clone()
	err.Cause = cause
	return err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := e.clone()
	err.Details[key] = value
	return err
}

func (e *Error) WithDetails(details map[string]interface{}) *Error {
	err := e.clone()
	for k, v := range details {
		err.Details[k] = v
	}
	return err
}

func (e *Error) WithStatus(status int) *Error {
	err := e.clone()
	err.Status = status
	return err
}

func (e *Error) AsRetryable() *Error {
	err := e.clone()
	retryable := true
	err.retryable = &retryable
	return err
}

func (e *Error) AsFatal() *Error {
	err := e.clone()
	retryable := false
	err.retryable = &retryable
	return err
}

func (e *Error) clone() *Error {
	err := *e
	err.Details = make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		err.Details[k] = v
	}
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

// Is and As forward to the standard library so callers need only this
// package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func hasCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsBadPayload(err error) bool {
	return hasCode(err, ErrBadPayload.Code)
}

func IsSchemaViolation(err error) bool {
	return hasCode(err, ErrSchemaViolation.Code)
}

func IsUnknownNamingScheme(err error) bool {
	return hasCode(err, ErrUnknownNamingScheme.Code)
}

// IsDecodeError reports whether err rejects an inbound payload.
func IsDecodeError(err error) bool {
	return IsBadPayload(err) || IsSchemaViolation(err) || IsUnknownNamingScheme(err)
}

func IsConnectionFailure(err error) bool {
	return hasCode(err, ErrConnectionFailure.Code)
}

func IsNotFound(err error) bool {
	return hasCode(err, ErrNotFound.Code)
}

func IsBadRequest(err error) bool {
	return hasCode(err, ErrBadRequest.Code)
}

// IsResourceMissing covers both ways the backend reports a submission for
// a resource it does not know about.
func IsResourceMissing(err error) bool {
	return IsNotFound(err) || IsBadRequest(err)
}

func IsConflict(err error) bool {
	return hasCode(err, ErrConflict.Code)
}

func IsValidation(err error) bool {
	return hasCode(err, ErrValidation.Code)
}

// Kind returns a short label for err suitable for logs and metric labels.
func Kind(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal.Code
}

// Reason returns the structured cause attached to err by the peer that
// produced it, or the plain error text when there is none.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		if reason, ok := appErr.Details[CauseKey].(string); ok && reason != "" {
			return reason
		}
		if appErr.Cause != nil {
			return appErr.Cause.Error()
		}
		return appErr.Message
	}
	return err.Error()
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}

	if len(appErr.Details) > 0 {
		response["details"] = appErr.Details
	}

	return response
}
