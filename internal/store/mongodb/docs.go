package mongodb

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
)

// BSON dates carry millisecond precision, so every instant is truncated
// before it is written or compared.
func ms(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

type slotDoc struct {
	ID                string     `bson:"_id"`
	ProviderID        string     `bson:"providerId"`
	StartTime         time.Time  `bson:"startTime"`
	EndTime           time.Time  `bson:"endTime"`
	Recurrence        string     `bson:"recurrence"`
	RecurrenceEndDate *time.Time `bson:"recurrenceEndDate,omitempty"`
	Status            string     `bson:"status"`
	CreatedAt         time.Time  `bson:"createdAt"`
	UpdatedAt         time.Time  `bson:"updatedAt"`
}

func toSlotDoc(s domain.AvailabilitySlot) slotDoc {
	d := slotDoc{
		ID:         s.ID.String(),
		ProviderID: s.ProviderID,
		StartTime:  ms(s.StartTime),
		EndTime:    ms(s.EndTime),
		Recurrence: string(s.Recurrence),
		Status:     string(s.Status),
		CreatedAt:  ms(s.CreatedAt),
		UpdatedAt:  ms(s.UpdatedAt),
	}
	if s.RecurrenceEndDate != nil {
		t := ms(*s.RecurrenceEndDate)
		d.RecurrenceEndDate = &t
	}
	return d
}

func (d slotDoc) domain() (domain.AvailabilitySlot, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.AvailabilitySlot{}, fmt.Errorf("slot %q: %w", d.ID, err)
	}
	s := domain.AvailabilitySlot{
		ID:         id,
		ProviderID: d.ProviderID,
		StartTime:  d.StartTime.UTC(),
		EndTime:    d.EndTime.UTC(),
		Recurrence: domain.Recurrence(d.Recurrence),
		Status:     domain.SlotStatus(d.Status),
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
	if d.RecurrenceEndDate != nil {
		t := d.RecurrenceEndDate.UTC()
		s.RecurrenceEndDate = &t
	}
	return s, nil
}

// bookingDoc mirrors domain.Booking. Active is true for every non-cancelled
// booking and backs the partial unique index on the provider range.
type bookingDoc struct {
	ID                 string    `bson:"_id"`
	ClientID           string    `bson:"clientId"`
	ProviderID         string    `bson:"providerId"`
	Service            string    `bson:"service"`
	StartTime          time.Time `bson:"startTime"`
	EndTime            time.Time `bson:"endTime"`
	Duration           int       `bson:"duration"`
	Status             string    `bson:"status"`
	Active             bool      `bson:"active"`
	PaymentStatus      string    `bson:"paymentStatus"`
	PaymentID          string    `bson:"paymentId,omitempty"`
	Notes              string    `bson:"notes,omitempty"`
	CancellationReason string    `bson:"cancellationReason,omitempty"`
	CreatedAt          time.Time `bson:"createdAt"`
	UpdatedAt          time.Time `bson:"updatedAt"`
}

func toBookingDoc(b domain.Booking) bookingDoc {
	d := bookingDoc{
		ID:                 b.ID.String(),
		ClientID:           b.ClientID,
		ProviderID:         b.ProviderID,
		Service:            b.Service,
		StartTime:          ms(b.StartTime),
		EndTime:            ms(b.EndTime),
		Duration:           b.Duration,
		Status:             string(b.Status),
		Active:             b.Status.Active(),
		PaymentStatus:      string(b.PaymentStatus),
		Notes:              b.Notes,
		CancellationReason: b.CancellationReason,
		CreatedAt:          ms(b.CreatedAt),
		UpdatedAt:          ms(b.UpdatedAt),
	}
	if b.PaymentID != nil {
		d.PaymentID = b.PaymentID.String()
	}
	return d
}

func (d bookingDoc) domain() (domain.Booking, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("booking %q: %w", d.ID, err)
	}
	b := domain.Booking{
		ID:                 id,
		ClientID:           d.ClientID,
		ProviderID:         d.ProviderID,
		Service:            d.Service,
		StartTime:          d.StartTime.UTC(),
		EndTime:            d.EndTime.UTC(),
		Duration:           d.Duration,
		Status:             domain.BookingStatus(d.Status),
		PaymentStatus:      domain.PaymentStatus(d.PaymentStatus),
		Notes:              d.Notes,
		CancellationReason: d.CancellationReason,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
	if d.PaymentID != "" {
		pid, err := uuid.Parse(d.PaymentID)
		if err != nil {
			return domain.Booking{}, fmt.Errorf("booking %q payment: %w", d.ID, err)
		}
		b.PaymentID = &pid
	}
	return b, nil
}

type paymentDoc struct {
	ID            string    `bson:"_id"`
	BookingID     string    `bson:"bookingId"`
	Amount        int64     `bson:"amount"`
	Currency      string    `bson:"currency"`
	Method        string    `bson:"method"`
	Status        string    `bson:"status"`
	TransactionID string    `bson:"transactionId"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

func toPaymentDoc(p domain.Payment) paymentDoc {
	return paymentDoc{
		ID:            p.ID.String(),
		BookingID:     p.BookingID.String(),
		Amount:        p.Amount,
		Currency:      p.Currency,
		Method:        string(p.Method),
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
		CreatedAt:     ms(p.CreatedAt),
		UpdatedAt:     ms(p.UpdatedAt),
	}
}

type userDoc struct {
	ID   string `bson:"_id"`
	Role string `bson:"role"`
}
