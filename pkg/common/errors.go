package common

import (
	"fmt"
	"net/http"
)

// AppError is an application error that carries an HTTP status code and an
// optional wrapped cause. Services return *AppError so handlers can map
// failures onto responses without inspecting error strings.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewBadRequestError indicates malformed or missing input.
func NewBadRequestError(message string, err error) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: message, Err: err}
}

// NewUnauthorizedError indicates a missing or invalid identity.
func NewUnauthorizedError(message string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, Message: message}
}

// NewForbiddenError indicates the caller may not perform this operation.
func NewForbiddenError(message string) *AppError {
	return &AppError{Code: http.StatusForbidden, Message: message}
}

// NewNotFoundError indicates the referenced entity does not exist.
func NewNotFoundError(message string, err ...error) *AppError {
	appErr := &AppError{Code: http.StatusNotFound, Message: message}
	if len(err) > 0 {
		appErr.Err = err[0]
	}
	return appErr
}

// NewConflictError indicates the operation lost a race or violates a
// uniqueness constraint (duplicate active ride, assignment already taken).
func NewConflictError(message string) *AppError {
	return &AppError{Code: http.StatusConflict, Message: message}
}

// NewUnprocessableError indicates the operation is invalid for the entity's
// current state (e.g. OTP verification on a completed ride).
func NewUnprocessableError(message string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Message: message}
}

// NewServiceUnavailableError indicates a required external collaborator is
// unreachable.
func NewServiceUnavailableError(message string, err error) *AppError {
	return &AppError{Code: http.StatusServiceUnavailable, Message: message, Err: err}
}

// NewInternalServerError indicates an unexpected failure.
func NewInternalServerError(message string) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: message}
}

// NewInternalError is like NewInternalServerError but preserves the cause.
func NewInternalError(message string, err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: message, Err: err}
}
