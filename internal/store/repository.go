package store

import (
	"context"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
)

// SlotFilter narrows ListSlots. Zero fields match everything; Window matches
// slots whose start falls inside it, bounds included.
type SlotFilter struct {
	ProviderID string
	Status     domain.SlotStatus
	Window     *domain.TimeRange
}

type BookingFilter struct {
	ClientID   string
	ProviderID string
	Status     domain.BookingStatus
	Window     *domain.TimeRange
}

// Repository is the storage seam shared by the availability and booking
// services. Writes go through InProviderTransaction, which serializes every
// transaction touching the same provider and rolls back when fn fails.
type Repository interface {
	InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx ProviderTx) error) error

	GetSlot(ctx context.Context, id uuid.UUID) (domain.AvailabilitySlot, error)
	ListSlots(ctx context.Context, filter SlotFilter) ([]domain.AvailabilitySlot, error)
	GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]domain.Booking, error)
}

// UserDirectory looks up accounts owned by the identity service.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}
