package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusBooked    SlotStatus = "booked"
	SlotStatusBlocked   SlotStatus = "blocked"
)

func ParseSlotStatus(s string) (SlotStatus, error) {
	switch st := SlotStatus(s); st {
	case SlotStatusAvailable, SlotStatusBooked, SlotStatusBlocked:
		return st, nil
	}
	return "", Errorf(KindInvalidArgument, "invalid slot status %q", s)
}

type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// ParseRecurrence treats the empty string as RecurrenceNone.
func ParseRecurrence(s string) (Recurrence, error) {
	switch r := Recurrence(s); r {
	case "":
		return RecurrenceNone, nil
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return r, nil
	}
	return "", Errorf(KindInvalidArgument, "invalid recurrence %q", s)
}

type AvailabilitySlot struct {
	bun.BaseModel `bun:"table:availability_slots"`

	ID                uuid.UUID  `bun:"id,pk,type:uuid"`
	ProviderID        string     `bun:"provider_id,notnull"`
	StartTime         time.Time  `bun:"start_time,notnull"`
	EndTime           time.Time  `bun:"end_time,notnull"`
	Recurrence        Recurrence `bun:"recurrence,notnull"`
	RecurrenceEndDate *time.Time `bun:"recurrence_end_date"`
	Status            SlotStatus `bun:"status,notnull"`
	CreatedAt         time.Time  `bun:"created_at,notnull"`
	UpdatedAt         time.Time  `bun:"updated_at,notnull"`
}

func (s *AvailabilitySlot) Range() TimeRange {
	return TimeRange{Start: s.StartTime, End: s.EndTime}
}

// Validate checks the record before it is written.
func (s *AvailabilitySlot) Validate() error {
	if s.ProviderID == "" {
		return Errorf(KindInvalidArgument, "provider_id is required")
	}
	if err := s.Range().Validate(); err != nil {
		return err
	}
	if _, err := ParseRecurrence(string(s.Recurrence)); err != nil {
		return err
	}
	if _, err := ParseSlotStatus(string(s.Status)); err != nil {
		return err
	}
	return nil
}

func (s *AvailabilitySlot) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if s == nil {
		return nil
	}
	return stampModel(query, &s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// stampModel assigns a UUIDv7 and timestamps on insert and bumps UpdatedAt on update.
func stampModel(query bun.Query, id *uuid.UUID, createdAt, updatedAt *time.Time) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if *id == uuid.Nil {
			v, err := uuid.NewV7()
			if err != nil {
				return err
			}
			*id = v
		}
		if createdAt.IsZero() {
			*createdAt = now
		}
		if updatedAt.IsZero() {
			*updatedAt = now
		}
	case *bun.UpdateQuery:
		*updatedAt = now
	}
	return nil
}
