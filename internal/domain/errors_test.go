package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("create booking: %w", Errorf(KindSlotUnavailable, "slot %s taken", "s1"))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected errors.Is to match by kind")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("different kinds must not match")
	}
	if got := KindOf(err); got != KindSlotUnavailable {
		t.Fatalf("KindOf = %q, want %q", got, KindSlotUnavailable)
	}
	if got := KindOf(errors.New("boom")); got != "" {
		t.Fatalf("KindOf(unclassified) = %q, want empty", got)
	}
}

func TestErrorMessageFallsBackToKind(t *testing.T) {
	if got := NewError(KindIllegalState, "").Error(); got != "illegal_state" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrNotFound, http.StatusNotFound},
		{ErrProviderNotFound, http.StatusNotFound},
		{ErrForbidden, http.StatusForbidden},
		{ErrInvalidRange, http.StatusBadRequest},
		{ErrInvalidArgument, http.StatusBadRequest},
		{ErrSlotUnavailable, http.StatusBadRequest},
		{ErrIllegalTransition, http.StatusBadRequest},
		{ErrIllegalState, http.StatusBadRequest},
		{ErrAlreadyPaid, http.StatusBadRequest},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
