package store

import (
	"context"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
)

type ProviderTx interface {
	InsertSlots(ctx context.Context, slots []domain.AvailabilitySlot) ([]domain.AvailabilitySlot, error)
	GetSlot(ctx context.Context, id uuid.UUID) (domain.AvailabilitySlot, error)
	// FindSlot returns the slot of providerID whose bounds equal r exactly and
	// whose status is status, or ErrNotFound.
	FindSlot(ctx context.Context, providerID string, r domain.TimeRange, status domain.SlotStatus) (domain.AvailabilitySlot, error)
	// CompareAndSetSlotStatus moves the slot from one status to another and
	// returns ErrConflict when the stored status is not from.
	CompareAndSetSlotStatus(ctx context.Context, id uuid.UUID, from, to domain.SlotStatus) error
	UpdateSlotRange(ctx context.Context, id uuid.UUID, r domain.TimeRange) error
	DeleteSlot(ctx context.Context, id uuid.UUID) error

	// InsertBooking returns ErrConflict when another non-cancelled booking holds
	// the same provider and range.
	InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	UpdateBooking(ctx context.Context, b domain.Booking) error
	HasActiveBooking(ctx context.Context, providerID string, r domain.TimeRange) (bool, error)

	InsertPayment(ctx context.Context, p domain.Payment) (domain.Payment, error)
}
