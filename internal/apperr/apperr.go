// Package apperr defines the error kinds surfaced to API callers.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
)

// Error is a domain error. MessageID is an i18n message id; Data fills its template.
type Error struct {
	Kind      Kind
	MessageID string
	Data      map[string]any
	Err       error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.MessageID
	if len(e.Data) > 0 {
		msg += fmt.Sprintf(" %v", e.Data)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, messageID string, data map[string]any) *Error {
	return &Error{Kind: kind, MessageID: messageID, Data: data}
}

func Validation(messageID string, data map[string]any) *Error {
	return newError(KindValidation, messageID, data)
}

func Conflict(messageID string, data map[string]any) *Error {
	return newError(KindConflict, messageID, data)
}

func NotFound(messageID string, data map[string]any) *Error {
	return newError(KindNotFound, messageID, data)
}

func Forbidden(messageID string, data map[string]any) *Error {
	return newError(KindForbidden, messageID, data)
}

// Wrap attaches a cause to e and returns it.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// As extracts the domain error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" for infrastructure errors.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
