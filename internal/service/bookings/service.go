// Package bookings owns the booking lifecycle and its handshake with
// provider availability.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/events"
	"appointly/backend/internal/identity"
	"appointly/backend/internal/payments"
	"appointly/backend/internal/store"
	"appointly/backend/internal/telemetry"
)

const (
	ClientCancelReason   = "Client cancelled"
	ProviderCancelReason = "Provider cancelled"

	UpcomingWindow = 7 * 24 * time.Hour
	UpcomingLimit  = 10
)

// SlotKeeper is the part of the availability service a booking needs.
type SlotKeeper interface {
	ClaimIn(ctx context.Context, tx store.ProviderTx, providerID string, r domain.TimeRange) (domain.AvailabilitySlot, error)
	Release(ctx context.Context, providerID string, start, end time.Time) error
}

type Service struct {
	repo      store.Repository
	slots     SlotKeeper
	users     identity.Resolver
	payments  payments.Collaborator
	publisher events.Publisher
	now       func() time.Time
	logger    *slog.Logger
	tracer    trace.Tracer
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

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func NewService(repo store.Repository, slots SlotKeeper, users identity.Resolver, pay payments.Collaborator, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		slots:     slots,
		users:     users,
		payments:  pay,
		publisher: events.Nop{},
		now:       func() time.Time { return time.Now().UTC() },
		logger:    slog.Default(),
		tracer:    telemetry.Tracer("bookings"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "bookings")
	return s
}

type CreateInput struct {
	ClientID   string
	ProviderID string
	Service    string
	StartTime  time.Time
	EndTime    time.Time
	Notes      string
}

// Create books the provider's available slot whose bounds equal the requested
// range. The booking insert and the slot flip commit or roll back together.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "bookings.Create", trace.WithAttributes(
		attribute.String("provider.id", in.ProviderID),
		attribute.String("client.id", in.ClientID),
	))
	defer span.End()

	r, err := domain.NewTimeRange(in.StartTime, in.EndTime)
	if err != nil {
		return domain.Booking{}, err
	}
	service := strings.TrimSpace(in.Service)
	switch {
	case in.ClientID == "":
		return domain.Booking{}, domain.Errorf(domain.KindInvalidArgument, "client_id is required")
	case in.ProviderID == "":
		return domain.Booking{}, domain.Errorf(domain.KindInvalidArgument, "provider_id is required")
	case service == "":
		return domain.Booking{}, domain.Errorf(domain.KindInvalidArgument, "service is required")
	}

	if err := s.requireProvider(ctx, in.ProviderID); err != nil {
		return domain.Booking{}, err
	}

	var out domain.Booking
	err = s.repo.InProviderTransaction(ctx, in.ProviderID, func(ctx context.Context, tx store.ProviderTx) error {
		held, err := tx.HasActiveBooking(ctx, in.ProviderID, r)
		if err != nil {
			return fmt.Errorf("check active booking: %w", err)
		}
		if held {
			return domain.ErrSlotUnavailable
		}

		b := domain.Booking{
			ClientID:      in.ClientID,
			ProviderID:    in.ProviderID,
			Service:       service,
			StartTime:     r.Start,
			EndTime:       r.End,
			Duration:      r.Minutes(),
			Status:        domain.BookingStatusPending,
			PaymentStatus: domain.PaymentStatusNotPaid,
			Notes:         in.Notes,
		}
		if err := b.Validate(); err != nil {
			return err
		}
		stored, err := tx.InsertBooking(ctx, b)
		if errors.Is(err, store.ErrConflict) {
			return domain.ErrSlotUnavailable
		}
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		if _, err := s.slots.ClaimIn(ctx, tx, in.ProviderID, r); err != nil {
			return err
		}
		out = stored
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Booking{}, err
	}

	span.SetAttributes(attribute.String("booking.id", out.ID.String()))
	s.logger.InfoContext(ctx, "booking created", "booking_id", out.ID, "provider_id", out.ProviderID, "start", out.StartTime)
	s.publish(ctx, events.TypeBookingCreated, out, "")
	return out, nil
}

// Cancel is the client-side cancellation. The cancellation commits before the
// slot is released; a failed release is logged and does not fail the call.
func (s *Service) Cancel(ctx context.Context, bookingID uuid.UUID, requesterClientID, reason string) (domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "bookings.Cancel", trace.WithAttributes(
		attribute.String("booking.id", bookingID.String()),
	))
	defer span.End()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = ClientCancelReason
	}

	var previous domain.BookingStatus
	out, err := s.inBookingTransaction(ctx, bookingID, func(ctx context.Context, tx store.ProviderTx, b domain.Booking) (domain.Booking, error) {
		if b.ClientID != requesterClientID {
			return domain.Booking{}, domain.Errorf(domain.KindForbidden, "not authorized to cancel this booking")
		}
		previous = b.Status
		return transition(ctx, tx, b, domain.BookingStatusCancelled, reason)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Booking{}, err
	}

	s.release(ctx, out)
	s.publish(ctx, events.TypeBookingCancelled, out, previous)
	return out, nil
}

// UpdateStatus is the provider-side status change. Moving to cancelled also
// releases the slot.
func (s *Service) UpdateStatus(ctx context.Context, bookingID uuid.UUID, requesterProviderID string, status domain.BookingStatus) (domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "bookings.UpdateStatus", trace.WithAttributes(
		attribute.String("booking.id", bookingID.String()),
		attribute.String("booking.status", string(status)),
	))
	defer span.End()

	if _, err := domain.ParseBookingStatus(string(status)); err != nil {
		return domain.Booking{}, err
	}

	var previous domain.BookingStatus
	out, err := s.inBookingTransaction(ctx, bookingID, func(ctx context.Context, tx store.ProviderTx, b domain.Booking) (domain.Booking, error) {
		if b.ProviderID != requesterProviderID {
			return domain.Booking{}, domain.Errorf(domain.KindForbidden, "not authorized to update this booking")
		}
		previous = b.Status
		return transition(ctx, tx, b, status, ProviderCancelReason)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Booking{}, err
	}

	if out.Status == domain.BookingStatusCancelled {
		s.release(ctx, out)
		s.publish(ctx, events.TypeBookingCancelled, out, previous)
	} else {
		s.publish(ctx, events.TypeBookingStatusChanged, out, previous)
	}
	return out, nil
}

type RecordPaymentInput struct {
	BookingID uuid.UUID
	ClientID  string
	Amount    int64
	Currency  string
	Method    string
}

// RecordPayment stores the payment and marks the booking paid in the same
// transaction. Paying a pending booking confirms it.
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) (domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "bookings.RecordPayment", trace.WithAttributes(
		attribute.String("booking.id", in.BookingID.String()),
	))
	defer span.End()

	if in.Amount <= 0 {
		return domain.Booking{}, domain.Errorf(domain.KindInvalidArgument, "amount must be positive")
	}

	var previous domain.BookingStatus
	out, err := s.inBookingTransaction(ctx, in.BookingID, func(ctx context.Context, tx store.ProviderTx, b domain.Booking) (domain.Booking, error) {
		if b.ClientID != in.ClientID {
			return domain.Booking{}, domain.Errorf(domain.KindForbidden, "not authorized to pay for this booking")
		}
		if b.PaymentStatus == domain.PaymentStatusPaid {
			return domain.Booking{}, domain.ErrAlreadyPaid
		}
		previous = b.Status

		p, err := s.payments.CreatePayment(ctx, tx, payments.Input{
			BookingID: b.ID,
			Amount:    in.Amount,
			Currency:  in.Currency,
			Method:    in.Method,
		})
		if err != nil {
			return domain.Booking{}, err
		}

		b.PaymentStatus = domain.PaymentStatusPaid
		b.PaymentID = &p.ID
		if b.Status == domain.BookingStatusPending {
			b.Status = domain.BookingStatusConfirmed
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return domain.Booking{}, fmt.Errorf("update booking: %w", err)
		}
		return b, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Booking{}, err
	}

	s.logger.InfoContext(ctx, "payment recorded", "booking_id", out.ID, "payment_id", out.PaymentID)
	s.publish(ctx, events.TypeBookingPaid, out, previous)
	return out, nil
}

func (s *Service) GetForClient(ctx context.Context, bookingID uuid.UUID, clientID string) (domain.Booking, error) {
	if bookingID == uuid.Nil {
		return domain.Booking{}, domain.Errorf(domain.KindInvalidArgument, "booking_id is required")
	}
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, translate(err, "get booking")
	}
	if b.ClientID != clientID {
		return domain.Booking{}, domain.Errorf(domain.KindForbidden, "not authorized to view this booking")
	}
	return b, nil
}

// ListFilter narrows a booking listing. Window matches bookings whose start
// falls inside it.
type ListFilter struct {
	Status *domain.BookingStatus
	Window *domain.TimeRange
}

func (f ListFilter) apply(into *store.BookingFilter) error {
	if f.Status != nil {
		if _, err := domain.ParseBookingStatus(string(*f.Status)); err != nil {
			return err
		}
		into.Status = *f.Status
	}
	if f.Window != nil {
		if err := f.Window.Validate(); err != nil {
			return err
		}
		into.Window = f.Window
	}
	return nil
}

func (s *Service) ListForClient(ctx context.Context, clientID string, f ListFilter) ([]domain.Booking, error) {
	if clientID == "" {
		return nil, domain.Errorf(domain.KindInvalidArgument, "client_id is required")
	}
	filter := store.BookingFilter{ClientID: clientID}
	if err := f.apply(&filter); err != nil {
		return nil, err
	}
	out, err := s.repo.ListBookings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list client bookings: %w", err)
	}
	return out, nil
}

func (s *Service) ListForProvider(ctx context.Context, providerID string, f ListFilter) ([]domain.Booking, error) {
	if providerID == "" {
		return nil, domain.Errorf(domain.KindInvalidArgument, "provider_id is required")
	}
	filter := store.BookingFilter{ProviderID: providerID}
	if err := f.apply(&filter); err != nil {
		return nil, err
	}
	out, err := s.repo.ListBookings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list provider bookings: %w", err)
	}
	return out, nil
}

type Dashboard struct {
	CountsByStatus         map[domain.BookingStatus]int
	Upcoming               []domain.Booking
	TotalUpcoming          int
	HoursAvailableThisWeek float64
}

// ProviderDashboard summarizes a provider's bookings and this week's open hours.
// Upcoming holds at most UpcomingLimit pending or confirmed bookings starting
// in the next seven days; TotalUpcoming counts all of them.
func (s *Service) ProviderDashboard(ctx context.Context, providerID string) (Dashboard, error) {
	if providerID == "" {
		return Dashboard{}, domain.Errorf(domain.KindInvalidArgument, "provider_id is required")
	}
	now := s.now().UTC()

	all, err := s.repo.ListBookings(ctx, store.BookingFilter{ProviderID: providerID})
	if err != nil {
		return Dashboard{}, fmt.Errorf("list provider bookings: %w", err)
	}

	d := Dashboard{CountsByStatus: map[domain.BookingStatus]int{}}
	soon := domain.Window(now, UpcomingWindow)
	for _, b := range all {
		d.CountsByStatus[b.Status]++
		if b.Status != domain.BookingStatusPending && b.Status != domain.BookingStatusConfirmed {
			continue
		}
		if soon.Contains(b.StartTime) {
			d.Upcoming = append(d.Upcoming, b)
		}
	}
	sort.SliceStable(d.Upcoming, func(i, j int) bool { return d.Upcoming[i].StartTime.Before(d.Upcoming[j].StartTime) })
	d.TotalUpcoming = len(d.Upcoming)
	if len(d.Upcoming) > UpcomingLimit {
		d.Upcoming = d.Upcoming[:UpcomingLimit]
	}

	week := domain.TimeRange{Start: domain.StartOfWeek(now), End: domain.EndOfWeek(now)}
	open, err := s.repo.ListSlots(ctx, store.SlotFilter{
		ProviderID: providerID,
		Status:     domain.SlotStatusAvailable,
		Window:     &week,
	})
	if err != nil {
		return Dashboard{}, fmt.Errorf("list available slots: %w", err)
	}
	ranges := make([]domain.TimeRange, 0, len(open))
	for _, slot := range open {
		ranges = append(ranges, slot.Range())
	}
	d.HoursAvailableThisWeek = domain.Hours(ranges)
	return d, nil
}

func (s *Service) requireProvider(ctx context.Context, providerID string) error {
	u, err := s.users.ResolveUser(ctx, providerID)
	if errors.Is(err, identity.ErrUnknownUser) {
		return domain.ErrProviderNotFound
	}
	if err != nil {
		return fmt.Errorf("resolve provider: %w", err)
	}
	if u.Role != domain.RoleProvider {
		return domain.ErrProviderNotFound
	}
	return nil
}

// inBookingTransaction opens a transaction on the booking's provider and hands
// fn the booking as read inside it.
func (s *Service) inBookingTransaction(ctx context.Context, bookingID uuid.UUID, fn func(ctx context.Context, tx store.ProviderTx, b domain.Booking) (domain.Booking, error)) (domain.Booking, error) {
	if bookingID == uuid.Nil {
		return domain.Booking{}, domain.Errorf(domain.KindInvalidArgument, "booking_id is required")
	}
	current, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, translate(err, "get booking")
	}

	var out domain.Booking
	err = s.repo.InProviderTransaction(ctx, current.ProviderID, func(ctx context.Context, tx store.ProviderTx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return translate(err, "get booking")
		}
		out, err = fn(ctx, tx, b)
		return err
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return out, nil
}

// transition applies the state machine and writes the booking. reason is
// recorded only when moving to cancelled.
func transition(ctx context.Context, tx store.ProviderTx, b domain.Booking, next domain.BookingStatus, reason string) (domain.Booking, error) {
	if !b.Status.CanTransitionTo(next) {
		return domain.Booking{}, domain.Errorf(domain.KindIllegalTransition, "cannot move booking from %s to %s", b.Status, next)
	}
	b.Status = next
	if next == domain.BookingStatusCancelled {
		b.CancellationReason = reason
	}
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return domain.Booking{}, translate(err, "update booking")
	}
	return b, nil
}

func (s *Service) release(ctx context.Context, b domain.Booking) {
	if err := s.slots.Release(ctx, b.ProviderID, b.StartTime, b.EndTime); err != nil {
		s.logger.WarnContext(ctx, "slot release failed", "booking_id", b.ID, "provider_id", b.ProviderID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, t events.Type, b domain.Booking, previous domain.BookingStatus) {
	if err := s.publisher.Publish(ctx, events.BookingEvent(t, b, previous, s.now())); err != nil {
		s.logger.WarnContext(ctx, "publish event failed", "event_type", t, "booking_id", b.ID, "error", err)
	}
}

func translate(err error, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.Errorf(domain.KindNotFound, "booking not found")
	}
	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
