// Package apperr defines the error taxonomy shared by handlers and services.
// Each kind maps to one HTTP status; handlers translate with StatusAndMessage.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	// KindValidation covers missing/invalid fields, unsupported modes and
	// sub-minimum charges. The message is returned to the caller verbatim.
	KindValidation Kind = iota
	// KindAuth covers missing/invalid tokens and signature mismatches.
	// Callers only ever see a generic message.
	KindAuth
	// KindConflict covers duplicate active subscriptions.
	KindConflict
	// KindNotFound covers missing users, customers and catalog rows.
	KindNotFound
	// KindGateway covers downstream gateway failures. The full diagnostic is
	// logged server-side; callers get a sanitized message.
	KindGateway
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error           { return &Error{Kind: KindValidation, Msg: msg} }
func Auth(msg string) error                 { return &Error{Kind: KindAuth, Msg: msg} }
func Conflict(msg string) error             { return &Error{Kind: KindConflict, Msg: msg} }
func NotFound(msg string) error             { return &Error{Kind: KindNotFound, Msg: msg} }
func Gateway(msg string, err error) error   { return &Error{Kind: KindGateway, Msg: msg, Err: err} }
func Wrap(kind Kind, msg string, err error) error { return &Error{Kind: kind, Msg: msg, Err: err} }

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// StatusAndMessage maps an error to the HTTP status and the message exposed
// to the caller. Unknown errors are treated as gateway failures.
func StatusAndMessage(err error) (int, string) {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, "internal server error"
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest, e.Msg
	case KindAuth:
		return http.StatusUnauthorized, "authentication failed"
	case KindConflict:
		return http.StatusConflict, e.Msg
	case KindNotFound:
		return http.StatusNotFound, e.Msg
	default:
		return http.StatusInternalServerError, e.Msg
	}
}
