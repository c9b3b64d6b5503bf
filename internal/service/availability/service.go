// Package availability manages provider time slots and their status lifecycle.
package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/identity"
	"appointly/backend/internal/store"
	"appointly/backend/internal/telemetry"
)

const DefaultListWindow = 30 * 24 * time.Hour

type Service struct {
	repo          store.Repository
	now           func() time.Time
	defaultWindow time.Duration
	users         identity.Resolver
	logger        *slog.Logger
	tracer        trace.Tracer
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDefaultWindow sets how far ahead ListAvailable looks when the caller
// gives no window.
func WithDefaultWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.defaultWindow = d
		}
	}
}

// WithUsers makes ListAvailable answer ProviderNotFound for ids that do not
// resolve to a provider.
func WithUsers(users identity.Resolver) Option {
	return func(s *Service) {
		s.users = users
	}
}

func NewService(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		now:           func() time.Time { return time.Now().UTC() },
		defaultWindow: DefaultListWindow,
		logger:        slog.Default(),
		tracer:        telemetry.Tracer("availability"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "availability")
	return s
}

type CreateInput struct {
	ProviderID        string
	StartTime         time.Time
	EndTime           time.Time
	Recurrence        domain.Recurrence
	RecurrenceEndDate *time.Time
}

func (in CreateInput) slot() (domain.AvailabilitySlot, error) {
	if in.ProviderID == "" {
		return domain.AvailabilitySlot{}, domain.Errorf(domain.KindInvalidArgument, "provider_id is required")
	}
	r, err := domain.NewTimeRange(in.StartTime, in.EndTime)
	if err != nil {
		return domain.AvailabilitySlot{}, err
	}
	rec, err := domain.ParseRecurrence(string(in.Recurrence))
	if err != nil {
		return domain.AvailabilitySlot{}, err
	}
	slot := domain.AvailabilitySlot{
		ProviderID: in.ProviderID,
		StartTime:  r.Start,
		EndTime:    r.End,
		Recurrence: rec,
		Status:     domain.SlotStatusAvailable,
	}
	if in.RecurrenceEndDate != nil {
		u := in.RecurrenceEndDate.UTC()
		slot.RecurrenceEndDate = &u
	}
	return slot, slot.Validate()
}

// Create stores one available slot. The recurrence fields are recorded as
// given; use CreateSeries to expand them into concrete slots.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.AvailabilitySlot, error) {
	ctx, span := s.tracer.Start(ctx, "availability.Create", trace.WithAttributes(
		attribute.String("provider.id", in.ProviderID),
	))
	defer span.End()

	slot, err := in.slot()
	if err != nil {
		return domain.AvailabilitySlot{}, err
	}

	var out domain.AvailabilitySlot
	err = s.repo.InProviderTransaction(ctx, slot.ProviderID, func(ctx context.Context, tx store.ProviderTx) error {
		rows, err := tx.InsertSlots(ctx, []domain.AvailabilitySlot{slot})
		if err != nil {
			return fmt.Errorf("insert slot: %w", err)
		}
		out = rows[0]
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.AvailabilitySlot{}, err
	}
	return out, nil
}

// CreateSeries expands a repeating slot and stores every occurrence in one
// transaction.
func (s *Service) CreateSeries(ctx context.Context, in CreateInput) ([]domain.AvailabilitySlot, error) {
	first, err := in.slot()
	if err != nil {
		return nil, err
	}
	if first.Recurrence == domain.RecurrenceNone {
		return nil, domain.Errorf(domain.KindInvalidArgument, "recurrence is required for a series")
	}
	if first.RecurrenceEndDate == nil {
		return nil, domain.Errorf(domain.KindInvalidArgument, "recurrence_end_date is required for a series")
	}

	ranges, err := domain.ExpandSeries(domain.SlotSeries{
		First:      first.Range(),
		Recurrence: first.Recurrence,
		Until:      *first.RecurrenceEndDate,
	})
	if err != nil {
		return nil, err
	}

	slots := make([]domain.AvailabilitySlot, 0, len(ranges))
	for _, r := range ranges {
		slot := first
		slot.StartTime, slot.EndTime = r.Start, r.End
		slots = append(slots, slot)
	}

	var out []domain.AvailabilitySlot
	err = s.repo.InProviderTransaction(ctx, first.ProviderID, func(ctx context.Context, tx store.ProviderTx) error {
		rows, err := tx.InsertSlots(ctx, slots)
		if err != nil {
			return fmt.Errorf("insert slot series: %w", err)
		}
		out = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("slot series created", "provider_id", first.ProviderID, "recurrence", first.Recurrence, "count", len(out))
	return out, nil
}

// FindAvailable looks for an available slot whose bounds equal [start, end)
// exactly. A slot that merely overlaps the range does not match.
func (s *Service) FindAvailable(ctx context.Context, providerID string, start, end time.Time) (domain.AvailabilitySlot, bool, error) {
	r, err := domain.NewTimeRange(start, end)
	if err != nil {
		return domain.AvailabilitySlot{}, false, err
	}

	var (
		slot  domain.AvailabilitySlot
		found bool
	)
	err = s.repo.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.ProviderTx) error {
		got, err := tx.FindSlot(ctx, providerID, r, domain.SlotStatusAvailable)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find slot: %w", err)
		}
		slot, found = got, true
		return nil
	})
	if err != nil {
		return domain.AvailabilitySlot{}, false, err
	}
	return slot, found, nil
}

// ClaimIn flips the exact-match available slot to booked inside tx. It fails
// with ErrSlotUnavailable when no slot matches or another claim got there first.
func (s *Service) ClaimIn(ctx context.Context, tx store.ProviderTx, providerID string, r domain.TimeRange) (domain.AvailabilitySlot, error) {
	slot, err := tx.FindSlot(ctx, providerID, r, domain.SlotStatusAvailable)
	if errors.Is(err, store.ErrNotFound) {
		return domain.AvailabilitySlot{}, domain.ErrSlotUnavailable
	}
	if err != nil {
		return domain.AvailabilitySlot{}, fmt.Errorf("find slot: %w", err)
	}

	err = tx.CompareAndSetSlotStatus(ctx, slot.ID, domain.SlotStatusAvailable, domain.SlotStatusBooked)
	if errors.Is(err, store.ErrConflict) {
		return domain.AvailabilitySlot{}, domain.ErrSlotUnavailable
	}
	if err != nil {
		return domain.AvailabilitySlot{}, fmt.Errorf("claim slot: %w", err)
	}
	slot.Status = domain.SlotStatusBooked
	return slot, nil
}

// ReleaseIn returns the exact-match booked slot to available inside tx and
// reports whether a slot was released.
func (s *Service) ReleaseIn(ctx context.Context, tx store.ProviderTx, providerID string, r domain.TimeRange) (bool, error) {
	slot, err := tx.FindSlot(ctx, providerID, r, domain.SlotStatusBooked)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find booked slot: %w", err)
	}

	err = tx.CompareAndSetSlotStatus(ctx, slot.ID, domain.SlotStatusBooked, domain.SlotStatusAvailable)
	if errors.Is(err, store.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("release slot: %w", err)
	}
	return true, nil
}

// Release frees the booked slot matching [start, end). No matching slot is not an error.
func (s *Service) Release(ctx context.Context, providerID string, start, end time.Time) error {
	r, err := domain.NewTimeRange(start, end)
	if err != nil {
		return err
	}
	return s.repo.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.ProviderTx) error {
		released, err := s.ReleaseIn(ctx, tx, providerID, r)
		if err != nil {
			return err
		}
		if !released {
			s.logger.Debug("no booked slot to release", "provider_id", providerID, "start", r.Start, "end", r.End)
		}
		return nil
	})
}

// SetStatus changes a slot's status. An empty requesterProviderID skips the
// ownership check and is meant for internal callers.
func (s *Service) SetStatus(ctx context.Context, requesterProviderID string, slotID uuid.UUID, status domain.SlotStatus) (domain.AvailabilitySlot, error) {
	if _, err := domain.ParseSlotStatus(string(status)); err != nil {
		return domain.AvailabilitySlot{}, err
	}

	var out domain.AvailabilitySlot
	err := s.inSlotTransaction(ctx, requesterProviderID, slotID, func(ctx context.Context, tx store.ProviderTx, slot domain.AvailabilitySlot) error {
		if status == domain.SlotStatusBlocked && slot.Status == domain.SlotStatusBooked {
			return domain.Errorf(domain.KindIllegalTransition, "cannot block a booked slot")
		}
		updated, err := setStatusIn(ctx, tx, slot, status)
		out = updated
		return err
	})
	if err != nil {
		return domain.AvailabilitySlot{}, err
	}
	return out, nil
}

// Delete removes a slot that is not booked.
func (s *Service) Delete(ctx context.Context, requesterProviderID string, slotID uuid.UUID) error {
	return s.inSlotTransaction(ctx, requesterProviderID, slotID, func(ctx context.Context, tx store.ProviderTx, slot domain.AvailabilitySlot) error {
		if slot.Status == domain.SlotStatusBooked {
			return domain.Errorf(domain.KindIllegalState, "cannot delete a booked slot")
		}
		if err := tx.DeleteSlot(ctx, slot.ID); err != nil {
			return translate(err, "delete slot")
		}
		return nil
	})
}

type UpdateInput struct {
	ProviderID string
	SlotID     uuid.UUID
	StartTime  *time.Time
	EndTime    *time.Time
	Status     *domain.SlotStatus
}

// Update is the provider-facing edit. Booked slots keep their times and their
// status; booked is never set by hand.
func (s *Service) Update(ctx context.Context, in UpdateInput) (domain.AvailabilitySlot, error) {
	if in.ProviderID == "" {
		return domain.AvailabilitySlot{}, domain.Errorf(domain.KindInvalidArgument, "provider_id is required")
	}
	if in.Status != nil {
		if _, err := domain.ParseSlotStatus(string(*in.Status)); err != nil {
			return domain.AvailabilitySlot{}, err
		}
	}

	var out domain.AvailabilitySlot
	err := s.inSlotTransaction(ctx, in.ProviderID, in.SlotID, func(ctx context.Context, tx store.ProviderTx, slot domain.AvailabilitySlot) error {
		if in.Status != nil && *in.Status != slot.Status {
			if *in.Status == domain.SlotStatusBooked {
				return domain.Errorf(domain.KindIllegalTransition, "slots are booked through bookings")
			}
			if slot.Status == domain.SlotStatusBooked {
				return domain.Errorf(domain.KindIllegalTransition, "cannot change the status of a booked slot")
			}
		}

		if in.StartTime != nil || in.EndTime != nil {
			r := slot.Range()
			if in.StartTime != nil {
				r.Start = in.StartTime.UTC()
			}
			if in.EndTime != nil {
				r.End = in.EndTime.UTC()
			}
			if err := r.Validate(); err != nil {
				return err
			}
			if !r.Equal(slot.Range()) {
				if slot.Status == domain.SlotStatusBooked {
					return domain.Errorf(domain.KindIllegalState, "cannot move a booked slot")
				}
				if err := tx.UpdateSlotRange(ctx, slot.ID, r); err != nil {
					return translate(err, "update slot range")
				}
				slot.StartTime, slot.EndTime = r.Start, r.End
			}
		}

		if in.Status != nil {
			updated, err := setStatusIn(ctx, tx, slot, *in.Status)
			if err != nil {
				return err
			}
			slot = updated
		}
		out = slot
		return nil
	})
	if err != nil {
		return domain.AvailabilitySlot{}, err
	}
	return out, nil
}

func (s *Service) ListForProvider(ctx context.Context, providerID string, window *domain.TimeRange) ([]domain.AvailabilitySlot, error) {
	if providerID == "" {
		return nil, domain.Errorf(domain.KindInvalidArgument, "provider_id is required")
	}
	if window != nil {
		if err := window.Validate(); err != nil {
			return nil, err
		}
	}
	slots, err := s.repo.ListSlots(ctx, store.SlotFilter{ProviderID: providerID, Window: window})
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// ListAvailable returns the provider's available slots starting inside
// window, or inside [now, now+default window] when window is nil.
func (s *Service) ListAvailable(ctx context.Context, providerID string, window *domain.TimeRange) ([]domain.AvailabilitySlot, error) {
	if providerID == "" {
		return nil, domain.Errorf(domain.KindInvalidArgument, "provider_id is required")
	}
	if s.users != nil {
		u, err := s.users.ResolveUser(ctx, providerID)
		switch {
		case errors.Is(err, identity.ErrUnknownUser):
			return nil, domain.ErrProviderNotFound
		case err != nil:
			return nil, fmt.Errorf("resolve provider: %w", err)
		case u.Role != domain.RoleProvider:
			return nil, domain.ErrProviderNotFound
		}
	}
	w := domain.Window(s.now(), s.defaultWindow)
	if window != nil {
		if err := window.Validate(); err != nil {
			return nil, err
		}
		w = *window
	}
	slots, err := s.repo.ListSlots(ctx, store.SlotFilter{
		ProviderID: providerID,
		Status:     domain.SlotStatusAvailable,
		Window:     &w,
	})
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return slots, nil
}

// inSlotTransaction loads the slot, opens a transaction on its provider,
// re-reads the slot there and checks ownership before calling fn.
func (s *Service) inSlotTransaction(ctx context.Context, requesterProviderID string, slotID uuid.UUID, fn func(ctx context.Context, tx store.ProviderTx, slot domain.AvailabilitySlot) error) error {
	if slotID == uuid.Nil {
		return domain.Errorf(domain.KindInvalidArgument, "slot_id is required")
	}
	current, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return translate(err, "get slot")
	}

	return s.repo.InProviderTransaction(ctx, current.ProviderID, func(ctx context.Context, tx store.ProviderTx) error {
		slot, err := tx.GetSlot(ctx, slotID)
		if err != nil {
			return translate(err, "get slot")
		}
		if requesterProviderID != "" && slot.ProviderID != requesterProviderID {
			return domain.Errorf(domain.KindForbidden, "slot belongs to another provider")
		}
		return fn(ctx, tx, slot)
	})
}

func setStatusIn(ctx context.Context, tx store.ProviderTx, slot domain.AvailabilitySlot, status domain.SlotStatus) (domain.AvailabilitySlot, error) {
	if slot.Status == status {
		return slot, nil
	}
	if err := tx.CompareAndSetSlotStatus(ctx, slot.ID, slot.Status, status); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.AvailabilitySlot{}, domain.Errorf(domain.KindIllegalState, "slot status changed concurrently")
		}
		return domain.AvailabilitySlot{}, fmt.Errorf("set slot status: %w", err)
	}
	slot.Status = status
	return slot, nil
}

func translate(err error, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.Errorf(domain.KindNotFound, "slot not found")
	}
	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
