package grpc

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/identity"
	"appointly/backend/internal/service/bookings"
)

type bookingService interface {
	Create(ctx context.Context, in bookings.CreateInput) (domain.Booking, error)
	GetForClient(ctx context.Context, bookingID uuid.UUID, clientID string) (domain.Booking, error)
	ListForClient(ctx context.Context, clientID string, f bookings.ListFilter) ([]domain.Booking, error)
	ListForProvider(ctx context.Context, providerID string, f bookings.ListFilter) ([]domain.Booking, error)
	Cancel(ctx context.Context, bookingID uuid.UUID, requesterClientID, reason string) (domain.Booking, error)
	UpdateStatus(ctx context.Context, bookingID uuid.UUID, requesterProviderID string, status domain.BookingStatus) (domain.Booking, error)
	RecordPayment(ctx context.Context, in bookings.RecordPaymentInput) (domain.Booking, error)
	ProviderDashboard(ctx context.Context, providerID string) (bookings.Dashboard, error)
}

type BookingServiceServer interface {
	CreateBooking(context.Context, *CreateBookingRequest) (*BookingResponse, error)
	GetBooking(context.Context, *GetBookingRequest) (*BookingResponse, error)
	ListClientBookings(context.Context, *ListBookingsRequest) (*ListBookingsResponse, error)
	ListProviderBookings(context.Context, *ListBookingsRequest) (*ListBookingsResponse, error)
	CancelBooking(context.Context, *CancelBookingRequest) (*BookingResponse, error)
	UpdateBookingStatus(context.Context, *UpdateBookingStatusRequest) (*BookingResponse, error)
	RecordPayment(context.Context, *RecordPaymentRequest) (*BookingResponse, error)
	ProviderDashboard(context.Context, *ProviderDashboardRequest) (*ProviderDashboardResponse, error)
}

type BookingServer struct {
	svc   bookingService
	users identity.Resolver
	log   *slog.Logger
}

func NewBookingServer(svc bookingService, users identity.Resolver, log *slog.Logger) *BookingServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingServer{
		svc:   svc,
		users: users,
		log:   log.With(slog.String("component", "grpc.bookings")),
	}
}

func (s *BookingServer) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*BookingResponse, error) {
	log := rpcLogger(ctx, s.log, "CreateBooking")
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	clientID, err := caller(ctx, s.users, domain.RoleClient)
	if err != nil {
		return nil, err
	}
	if req.StartTime == nil || req.EndTime == nil {
		log.Warn("invalid request", slog.String("reason", "missing_times"), slog.String("client_id", clientID))
		return nil, status.Error(codes.InvalidArgument, "start_time and end_time are required")
	}

	b, err := s.svc.Create(ctx, bookings.CreateInput{
		ClientID:   clientID,
		ProviderID: req.ProviderId,
		Service:    req.Service,
		StartTime:  req.StartTime.AsTime(),
		EndTime:    req.EndTime.AsTime(),
		Notes:      req.Notes,
	})
	if err != nil {
		return nil, statusError(ctx, log, "booking create", err,
			slog.String("client_id", clientID),
			slog.String("provider_id", req.ProviderId),
			slog.Time("start_time", req.StartTime.AsTime()),
			slog.Time("end_time", req.EndTime.AsTime()),
		)
	}

	log.Info("booking created",
		slog.String("booking_id", b.ID.String()),
		slog.String("client_id", b.ClientID),
		slog.String("provider_id", b.ProviderID),
		slog.Time("start_time", b.StartTime),
	)
	return &BookingResponse{Booking: toBooking(b)}, nil
}

func (s *BookingServer) GetBooking(ctx context.Context, req *GetBookingRequest) (*BookingResponse, error) {
	log := rpcLogger(ctx, s.log, "GetBooking")
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	clientID, id, err := s.bookingCaller(ctx, log, domain.RoleClient, req.BookingId)
	if err != nil {
		return nil, err
	}

	b, err := s.svc.GetForClient(ctx, id, clientID)
	if err != nil {
		return nil, statusError(ctx, log, "booking get", err, slog.String("booking_id", id.String()))
	}
	return &BookingResponse{Booking: toBooking(b)}, nil
}

func (s *BookingServer) ListClientBookings(ctx context.Context, req *ListBookingsRequest) (*ListBookingsResponse, error) {
	log := rpcLogger(ctx, s.log, "ListClientBookings")
	clientID, err := caller(ctx, s.users, domain.RoleClient)
	if err != nil {
		return nil, err
	}
	f, err := listFilter(req)
	if err != nil {
		return nil, err
	}

	out, err := s.svc.ListForClient(ctx, clientID, f)
	if err != nil {
		return nil, statusError(ctx, log, "client bookings list", err, slog.String("client_id", clientID))
	}
	log.Debug("bookings listed", slog.String("client_id", clientID), slog.Int("count", len(out)))
	return &ListBookingsResponse{Bookings: toBookings(out)}, nil
}

func (s *BookingServer) ListProviderBookings(ctx context.Context, req *ListBookingsRequest) (*ListBookingsResponse, error) {
	log := rpcLogger(ctx, s.log, "ListProviderBookings")
	providerID, err := caller(ctx, s.users, domain.RoleProvider)
	if err != nil {
		return nil, err
	}
	f, err := listFilter(req)
	if err != nil {
		return nil, err
	}

	out, err := s.svc.ListForProvider(ctx, providerID, f)
	if err != nil {
		return nil, statusError(ctx, log, "provider bookings list", err, slog.String("provider_id", providerID))
	}
	log.Debug("bookings listed", slog.String("provider_id", providerID), slog.Int("count", len(out)))
	return &ListBookingsResponse{Bookings: toBookings(out)}, nil
}

func (s *BookingServer) CancelBooking(ctx context.Context, req *CancelBookingRequest) (*BookingResponse, error) {
	log := rpcLogger(ctx, s.log, "CancelBooking")
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	clientID, id, err := s.bookingCaller(ctx, log, domain.RoleClient, req.BookingId)
	if err != nil {
		return nil, err
	}

	b, err := s.svc.Cancel(ctx, id, clientID, req.Reason)
	if err != nil {
		return nil, statusError(ctx, log, "booking cancel", err, slog.String("booking_id", id.String()), slog.String("client_id", clientID))
	}
	log.Info("booking cancelled", slog.String("booking_id", id.String()), slog.String("reason", b.CancellationReason))
	return &BookingResponse{Booking: toBooking(b)}, nil
}

func (s *BookingServer) UpdateBookingStatus(ctx context.Context, req *UpdateBookingStatusRequest) (*BookingResponse, error) {
	log := rpcLogger(ctx, s.log, "UpdateBookingStatus")
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	providerID, id, err := s.bookingCaller(ctx, log, domain.RoleProvider, req.BookingId)
	if err != nil {
		return nil, err
	}

	b, err := s.svc.UpdateStatus(ctx, id, providerID, domain.BookingStatus(req.Status))
	if err != nil {
		return nil, statusError(ctx, log, "booking status update", err,
			slog.String("booking_id", id.String()),
			slog.String("status", req.Status),
		)
	}
	log.Info("booking status updated", slog.String("booking_id", id.String()), slog.String("status", string(b.Status)))
	return &BookingResponse{Booking: toBooking(b)}, nil
}

func (s *BookingServer) RecordPayment(ctx context.Context, req *RecordPaymentRequest) (*BookingResponse, error) {
	log := rpcLogger(ctx, s.log, "RecordPayment")
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	clientID, id, err := s.bookingCaller(ctx, log, domain.RoleClient, req.BookingId)
	if err != nil {
		return nil, err
	}

	b, err := s.svc.RecordPayment(ctx, bookings.RecordPaymentInput{
		BookingID: id,
		ClientID:  clientID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Method:    req.Method,
	})
	if err != nil {
		return nil, statusError(ctx, log, "payment record", err, slog.String("booking_id", id.String()))
	}
	log.Info("payment recorded", slog.String("booking_id", id.String()), slog.String("payment_status", string(b.PaymentStatus)))
	return &BookingResponse{Booking: toBooking(b)}, nil
}

func (s *BookingServer) ProviderDashboard(ctx context.Context, _ *ProviderDashboardRequest) (*ProviderDashboardResponse, error) {
	log := rpcLogger(ctx, s.log, "ProviderDashboard")
	providerID, err := caller(ctx, s.users, domain.RoleProvider)
	if err != nil {
		return nil, err
	}

	d, err := s.svc.ProviderDashboard(ctx, providerID)
	if err != nil {
		return nil, statusError(ctx, log, "dashboard", err, slog.String("provider_id", providerID))
	}
	return toDashboard(d), nil
}

// bookingCaller resolves the caller for role and parses the booking id.
func (s *BookingServer) bookingCaller(ctx context.Context, log *slog.Logger, role domain.Role, bookingID string) (string, uuid.UUID, error) {
	userID, err := caller(ctx, s.users, role)
	if err != nil {
		return "", uuid.Nil, err
	}
	id, err := uuid.Parse(bookingID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("user_id", userID))
		return "", uuid.Nil, status.Error(codes.InvalidArgument, "booking_id must be a UUID")
	}
	return userID, id, nil
}

func listFilter(req *ListBookingsRequest) (bookings.ListFilter, error) {
	var f bookings.ListFilter
	if req == nil {
		return f, nil
	}
	if req.Status != "" {
		st := domain.BookingStatus(req.Status)
		f.Status = &st
	}
	w, ok := window(req.WindowStart, req.WindowEnd)
	if !ok {
		return f, status.Error(codes.InvalidArgument, "window_start and window_end must be set together")
	}
	f.Window = w
	return f, nil
}

const bookingServiceName = "appointly.v1.BookingService"

var BookingServiceDesc = grpc.ServiceDesc{
	ServiceName: bookingServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(bookingServiceName, "CreateBooking", BookingServiceServer.CreateBooking),
		unary(bookingServiceName, "GetBooking", BookingServiceServer.GetBooking),
		unary(bookingServiceName, "ListClientBookings", BookingServiceServer.ListClientBookings),
		unary(bookingServiceName, "ListProviderBookings", BookingServiceServer.ListProviderBookings),
		unary(bookingServiceName, "CancelBooking", BookingServiceServer.CancelBooking),
		unary(bookingServiceName, "UpdateBookingStatus", BookingServiceServer.UpdateBookingStatus),
		unary(bookingServiceName, "RecordPayment", BookingServiceServer.RecordPayment),
		unary(bookingServiceName, "ProviderDashboard", BookingServiceServer.ProviderDashboard),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "appointly/v1/booking.proto",
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&BookingServiceDesc, srv)
}

var _ BookingServiceServer = (*BookingServer)(nil)
