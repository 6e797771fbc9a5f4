// Package gwerrors defines the stable error codes surfaced across the
// session/worker coordination layer and the HTTP facade that sits on top
// of it.
package gwerrors

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error identifier, returned to HTTP
// clients as error_code and used internally to pick a status code.
type Code string

const (
	CodeSessionNotFound Code = "session-not-found"
	CodeSessionDone     Code = "session-already-done"
	CodeNoSlots         Code = "no-slots"
	CodeContainerError  Code = "container-error"
	CodeInternal        Code = "internal"
)

// GatewayError is the error type returned by every core operation that can
// fail in a way a caller needs to distinguish. It satisfies the error
// interface so it composes with errors.Is/As and %w wrapping.
type GatewayError struct {
	Code   Code
	Detail string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// New builds a GatewayError with the given code and detail message.
func New(code Code, detail string) *GatewayError {
	return &GatewayError{Code: code, Detail: detail}
}

// Wrap builds a GatewayError that carries an underlying cause.
func Wrap(code Code, detail string, err error) *GatewayError {
	return &GatewayError{Code: code, Detail: detail, Err: err}
}

// NotFound reports a session-not-found error for the given id.
func NotFound(id string) *GatewayError {
	return New(CodeSessionNotFound, fmt.Sprintf("session %s not found", id))
}

// AlreadyDone reports a session-already-done error for the given id.
func AlreadyDone(id string) *GatewayError {
	return New(CodeSessionDone, fmt.Sprintf("session %s is already done", id))
}

// NoSlots reports capacity exhaustion against the configured ceiling.
func NoSlots(max int) *GatewayError {
	return New(CodeNoSlots, fmt.Sprintf("no slots available (max_sessions=%d)", max))
}

// ContainerErr wraps a container start/attach/init/exchange failure.
func ContainerErr(detail string, err error) *GatewayError {
	return Wrap(CodeContainerError, detail, err)
}

// CodeOf extracts the stable code from err, defaulting to "internal" for
// errors that did not originate from this package.
func CodeOf(err error) Code {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeInternal
}
