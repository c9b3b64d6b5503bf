package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusNoShow    BookingStatus = "no-show"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCancelled, BookingStatusNoShow},
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	switch st := BookingStatus(s); st {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCompleted,
		BookingStatusCancelled, BookingStatusNoShow:
		return st, nil
	}
	return "", Errorf(KindInvalidArgument, "invalid booking status %q", s)
}

// IsTerminal reports whether no transition leaves s.
func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active bookings hold their slot.
func (s BookingStatus) Active() bool {
	return s != BookingStatusCancelled
}

type PaymentStatus string

const (
	PaymentStatusNotPaid  PaymentStatus = "not_paid"
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID                 uuid.UUID     `bun:"id,pk,type:uuid"`
	ClientID           string        `bun:"client_id,notnull"`
	ProviderID         string        `bun:"provider_id,notnull"`
	Service            string        `bun:"service,notnull"`
	StartTime          time.Time     `bun:"start_time,notnull"`
	EndTime            time.Time     `bun:"end_time,notnull"`
	Duration           int           `bun:"duration_minutes,notnull"`
	Status             BookingStatus `bun:"status,notnull"`
	PaymentStatus      PaymentStatus `bun:"payment_status,notnull"`
	PaymentID          *uuid.UUID    `bun:"payment_id,type:uuid"`
	Notes              string        `bun:"notes"`
	CancellationReason string        `bun:"cancellation_reason"`
	CreatedAt          time.Time     `bun:"created_at,notnull"`
	UpdatedAt          time.Time     `bun:"updated_at,notnull"`
}

func (b *Booking) Range() TimeRange {
	return TimeRange{Start: b.StartTime, End: b.EndTime}
}

func (b *Booking) Validate() error {
	if b.ClientID == "" {
		return Errorf(KindInvalidArgument, "client_id is required")
	}
	if b.ProviderID == "" {
		return Errorf(KindInvalidArgument, "provider_id is required")
	}
	if b.Service == "" {
		return Errorf(KindInvalidArgument, "service is required")
	}
	if err := b.Range().Validate(); err != nil {
		return err
	}
	if b.Duration != b.Range().Minutes() {
		return Errorf(KindInvalidArgument, "duration %d does not match range", b.Duration)
	}
	if _, err := ParseBookingStatus(string(b.Status)); err != nil {
		return err
	}
	return nil
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if b == nil {
		return nil
	}
	return stampModel(query, &b.ID, &b.CreatedAt, &b.UpdatedAt)
}
