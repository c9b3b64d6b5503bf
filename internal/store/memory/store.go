// Package memory is an in-process store.Repository for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

type state struct {
	slots    map[uuid.UUID]domain.AvailabilitySlot
	bookings map[uuid.UUID]domain.Booking
	payments map[uuid.UUID]domain.Payment
}

func (s *state) clone() *state {
	out := &state{
		slots:    make(map[uuid.UUID]domain.AvailabilitySlot, len(s.slots)),
		bookings: make(map[uuid.UUID]domain.Booking, len(s.bookings)),
		payments: make(map[uuid.UUID]domain.Payment, len(s.payments)),
	}
	for k, v := range s.slots {
		out.slots[k] = v
	}
	for k, v := range s.bookings {
		out.bookings[k] = v
	}
	for k, v := range s.payments {
		out.payments[k] = v
	}
	return out
}

// Store keeps everything behind one mutex. A transaction works on a copy of
// the data that replaces the original only when fn succeeds.
type Store struct {
	mu    sync.Mutex
	data  *state
	users map[string]domain.User
}

func New() *Store {
	return &Store{
		data: &state{
			slots:    map[uuid.UUID]domain.AvailabilitySlot{},
			bookings: map[uuid.UUID]domain.Booking{},
			payments: map[uuid.UUID]domain.Payment{},
		},
		users: map[string]domain.User{},
	}
}

func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(ctx, &memTx{data: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) GetSlot(ctx context.Context, id uuid.UUID) (domain.AvailabilitySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{data: s.data}).GetSlot(ctx, id)
}

func (s *Store) ListSlots(ctx context.Context, filter store.SlotFilter) ([]domain.AvailabilitySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.AvailabilitySlot, 0)
	for _, slot := range s.data.slots {
		if filter.ProviderID != "" && slot.ProviderID != filter.ProviderID {
			continue
		}
		if filter.Status != "" && slot.Status != filter.Status {
			continue
		}
		if filter.Window != nil && !filter.Window.Contains(slot.StartTime) {
			continue
		}
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{data: s.data}).GetBooking(ctx, id)
}

func (s *Store) ListBookings(ctx context.Context, filter store.BookingFilter) ([]domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Booking, 0)
	for _, b := range s.data.bookings {
		if filter.ClientID != "" && b.ClientID != filter.ClientID {
			continue
		}
		if filter.ProviderID != "" && b.ProviderID != filter.ProviderID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.Window != nil && !filter.Window.Contains(b.StartTime) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// Payments returns the payments recorded against a booking.
func (s *Store) Payments(bookingID uuid.UUID) []domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Payment
	for _, p := range s.data.payments {
		if p.BookingID == bookingID {
			out = append(out, p)
		}
	}
	return out
}

type memTx struct {
	data *state
}

func (t *memTx) InsertSlots(ctx context.Context, slots []domain.AvailabilitySlot) ([]domain.AvailabilitySlot, error) {
	now := time.Now().UTC()
	out := make([]domain.AvailabilitySlot, 0, len(slots))
	for _, slot := range slots {
		if slot.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return nil, err
			}
			slot.ID = id
		}
		if _, exists := t.data.slots[slot.ID]; exists {
			return nil, store.ErrConflict
		}
		slot.CreatedAt, slot.UpdatedAt = now, now
		t.data.slots[slot.ID] = slot
		out = append(out, slot)
	}
	return out, nil
}

func (t *memTx) GetSlot(ctx context.Context, id uuid.UUID) (domain.AvailabilitySlot, error) {
	slot, ok := t.data.slots[id]
	if !ok {
		return domain.AvailabilitySlot{}, store.ErrNotFound
	}
	return slot, nil
}

func (t *memTx) FindSlot(ctx context.Context, providerID string, r domain.TimeRange, status domain.SlotStatus) (domain.AvailabilitySlot, error) {
	var (
		found domain.AvailabilitySlot
		ok    bool
	)
	for _, slot := range t.data.slots {
		if slot.ProviderID != providerID || slot.Status != status || !slot.Range().Equal(r) {
			continue
		}
		// Oldest first, matching the ordering of the database stores.
		if !ok || slot.CreatedAt.Before(found.CreatedAt) {
			found, ok = slot, true
		}
	}
	if !ok {
		return domain.AvailabilitySlot{}, store.ErrNotFound
	}
	return found, nil
}

func (t *memTx) CompareAndSetSlotStatus(ctx context.Context, id uuid.UUID, from, to domain.SlotStatus) error {
	slot, ok := t.data.slots[id]
	if !ok || slot.Status != from {
		return store.ErrConflict
	}
	slot.Status = to
	slot.UpdatedAt = time.Now().UTC()
	t.data.slots[id] = slot
	return nil
}

func (t *memTx) UpdateSlotRange(ctx context.Context, id uuid.UUID, r domain.TimeRange) error {
	slot, ok := t.data.slots[id]
	if !ok {
		return store.ErrNotFound
	}
	slot.StartTime, slot.EndTime = r.Start, r.End
	slot.UpdatedAt = time.Now().UTC()
	t.data.slots[id] = slot
	return nil
}

func (t *memTx) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.data.slots[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.data.slots, id)
	return nil
}

func (t *memTx) InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	held, err := t.HasActiveBooking(ctx, b.ProviderID, b.Range())
	if err != nil {
		return domain.Booking{}, err
	}
	if held && b.Status.Active() {
		return domain.Booking{}, store.ErrConflict
	}
	if b.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Booking{}, err
		}
		b.ID = id
	}
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	t.data.bookings[b.ID] = b
	return b, nil
}

func (t *memTx) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	b, ok := t.data.bookings[id]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	return b, nil
}

func (t *memTx) UpdateBooking(ctx context.Context, b domain.Booking) error {
	if _, ok := t.data.bookings[b.ID]; !ok {
		return store.ErrNotFound
	}
	b.UpdatedAt = time.Now().UTC()
	t.data.bookings[b.ID] = b
	return nil
}

func (t *memTx) HasActiveBooking(ctx context.Context, providerID string, r domain.TimeRange) (bool, error) {
	for _, b := range t.data.bookings {
		if b.ProviderID == providerID && b.Status.Active() && b.Range().Equal(r) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertPayment(ctx context.Context, p domain.Payment) (domain.Payment, error) {
	if p.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Payment{}, err
		}
		p.ID = id
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	t.data.payments[p.ID] = p
	return p, nil
}

var (
	_ store.Repository    = (*Store)(nil)
	_ store.UserDirectory = (*Store)(nil)
)
