// Package events publishes booking lifecycle events after a change commits.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
)

type Type string

const (
	TypeBookingCreated       Type = "booking.created"
	TypeBookingCancelled     Type = "booking.cancelled"
	TypeBookingStatusChanged Type = "booking.status_changed"
	TypeBookingPaid          Type = "booking.paid"
)

type Event struct {
	ID             string    `json:"event_id"`
	Type           Type      `json:"event_type"`
	OccurredAt     time.Time `json:"occurred_at"`
	BookingID      string    `json:"booking_id"`
	ClientID       string    `json:"client_id"`
	ProviderID     string    `json:"provider_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	PaymentStatus  string    `json:"payment_status"`
	PaymentID      string    `json:"payment_id,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Reason         string    `json:"reason,omitempty"`
}

// BookingEvent snapshots b. previous is the status before the change, or "".
func BookingEvent(t Type, b domain.Booking, previous domain.BookingStatus, at time.Time) Event {
	e := Event{
		Type:           t,
		OccurredAt:     at.UTC(),
		BookingID:      b.ID.String(),
		ClientID:       b.ClientID,
		ProviderID:     b.ProviderID,
		Status:         string(b.Status),
		PreviousStatus: string(previous),
		PaymentStatus:  string(b.PaymentStatus),
		StartTime:      b.StartTime.UTC(),
		EndTime:        b.EndTime.UTC(),
		Reason:         b.CancellationReason,
	}
	if id, err := uuid.NewV7(); err == nil {
		e.ID = id.String()
	} else {
		e.ID = uuid.NewString()
	}
	if b.PaymentID != nil {
		e.PaymentID = b.PaymentID.String()
	}
	return e
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
