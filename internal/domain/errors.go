package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can branch on it without parsing messages.
type Kind string

const (
	KindInvalidRange      Kind = "invalid_range"
	KindInvalidArgument   Kind = "invalid_argument"
	KindProviderNotFound  Kind = "provider_not_found"
	KindSlotUnavailable   Kind = "slot_unavailable"
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindIllegalTransition Kind = "illegal_transition"
	KindIllegalState      Kind = "illegal_state"
	KindAlreadyPaid       Kind = "already_paid"
)

type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	if e.msg == "" {
		return string(e.Kind)
	}
	return e.msg
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) holds
// for every not-found failure regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NewError(kind Kind, msg string) error {
	return &Error{Kind: kind, msg: msg}
}

func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidRange      = &Error{Kind: KindInvalidRange, msg: "end time must be after start time"}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument, msg: "invalid argument"}
	ErrProviderNotFound  = &Error{Kind: KindProviderNotFound, msg: "provider not found"}
	ErrSlotUnavailable   = &Error{Kind: KindSlotUnavailable, msg: "selected time slot is not available"}
	ErrNotFound          = &Error{Kind: KindNotFound, msg: "not found"}
	ErrForbidden         = &Error{Kind: KindForbidden, msg: "not authorized"}
	ErrIllegalTransition = &Error{Kind: KindIllegalTransition, msg: "illegal status transition"}
	ErrIllegalState      = &Error{Kind: KindIllegalState, msg: "illegal state"}
	ErrAlreadyPaid       = &Error{Kind: KindAlreadyPaid, msg: "booking has already been paid for"}
)

// KindOf returns the kind of the first *Error in err's chain, or "" when err is
// nil or unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps a failure to the status code an HTTP gateway should answer with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindNotFound, KindProviderNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidRange, KindInvalidArgument, KindSlotUnavailable,
		KindIllegalTransition, KindIllegalState, KindAlreadyPaid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
