package api

import (
	"errors"
	"net/http"
)

// Error categories. Classification is by HTTP status code, never by message
// substring; server-provided messages are carried for display only.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrSessionExpired = errors.New("session expired")
)

const genericMessage = "request failed, please try again"

// Error is a normalized backend or transport failure. Status is zero for
// transport-level failures.
type Error struct {
	Status  int
	Message string
	kind    error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.kind }

// Message returns the user-facing message carried by a normalized error, or
// the error text for anything else.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

// mapStatusError normalizes a non-2xx response into an Error. The server
// message wins; the status text and a generic fallback follow.
func mapStatusError(status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = genericMessage
	}
	var kind error
	switch status {
	case http.StatusNotFound:
		kind = ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = ErrInvalidInput
	case http.StatusUnauthorized:
		kind = ErrUnauthorized
	}
	return &Error{Status: status, Message: message, kind: kind}
}

// transportError normalizes a transport-level failure (timeout, connection
// refused, body read error) into the same shape as any other failure.
func transportError(err error) error {
	msg := genericMessage
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &Error{Status: 0, Message: msg}
}
