package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

func TestAvailabilitySlot_Validate(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	slot := AvailabilitySlot{ProviderID: "p1", StartTime: start, EndTime: start.Add(time.Hour), Recurrence: RecurrenceNone, Status: SlotStatusAvailable}
	if err := slot.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}

	bad := slot
	bad.Status = "reserved"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
	bad = slot
	bad.EndTime = bad.StartTime
	if err := bad.Validate(); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("err = %v, want ErrInvalidRange", err)
	}
}

func TestParseRecurrence_DefaultsToNone(t *testing.T) {
	r, err := ParseRecurrence("")
	if err != nil || r != RecurrenceNone {
		t.Fatalf("ParseRecurrence(\"\") = %q, %v", r, err)
	}
	if _, err := ParseRecurrence("yearly"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestBeforeAppendModel_StampsInsert(t *testing.T) {
	s := &AvailabilitySlot{}
	if err := s.BeforeAppendModel(context.Background(), &bun.InsertQuery{}); err != nil {
		t.Fatalf("BeforeAppendModel error: %v", err)
	}
	if s.ID == uuid.Nil || s.CreatedAt.IsZero() || s.UpdatedAt.IsZero() {
		t.Fatalf("insert did not stamp id and timestamps: %+v", s)
	}
	if s.ID.Version() != 7 {
		t.Fatalf("id version = %d, want 7", s.ID.Version())
	}

	created := s.CreatedAt
	s.UpdatedAt = time.Time{}
	if err := s.BeforeAppendModel(context.Background(), &bun.UpdateQuery{}); err != nil {
		t.Fatalf("BeforeAppendModel error: %v", err)
	}
	if s.UpdatedAt.IsZero() || !s.CreatedAt.Equal(created) {
		t.Fatalf("update should only bump updated_at: %+v", s)
	}

	var nilSlot *AvailabilitySlot
	if err := nilSlot.BeforeAppendModel(context.Background(), &bun.UpdateQuery{}); err != nil {
		t.Fatalf("nil receiver error: %v", err)
	}
}
