package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/identity"
	"appointly/backend/internal/payments"
	"appointly/backend/internal/service/availability"
	"appointly/backend/internal/service/bookings"
	"appointly/backend/internal/store/memory"
)

func startServer(t *testing.T) *grpc.ClientConn {
	t.Helper()

	repo := memory.New()
	repo.PutUser(domain.User{ID: "p1", Role: domain.RoleProvider})
	repo.PutUser(domain.User{ID: "c1", Role: domain.RoleClient})
	users := identity.NewDirectoryResolver(repo)

	log := discardLogger()
	slots := availability.NewService(repo, availability.WithLogger(log), availability.WithUsers(users))
	booker := bookings.NewService(repo, slots, users, payments.NewLedgerRecorder(), bookings.WithLogger(log))

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(RequestIDInterceptor()))
	RegisterAvailabilityServiceServer(srv, NewAvailabilityServer(slots, users, log))
	RegisterBookingServiceServer(srv, NewBookingServer(booker, users, log))
	healthpb.RegisterHealthServer(srv, health.NewServer())

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func outgoing(user string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), UserIDHeader, user)
}

func TestServer_BookingFlow(t *testing.T) {
	conn := startServer(t)
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	end := start.Add(time.Hour)

	var slot CreateSlotResponse
	err := conn.Invoke(outgoing("p1"), "/appointly.v1.AvailabilityService/CreateSlot",
		&CreateSlotRequest{StartTime: NewTimestamp(start), EndTime: NewTimestamp(end)}, &slot)
	if err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	if slot.Slot.Status != "available" {
		t.Fatalf("slot = %+v", slot.Slot)
	}

	var open ListSlotsResponse
	if err := conn.Invoke(outgoing("c1"), "/appointly.v1.AvailabilityService/ListAvailableSlots",
		&ListAvailableSlotsRequest{ProviderId: "p1"}, &open); err != nil {
		t.Fatalf("ListAvailableSlots: %v", err)
	}
	if len(open.Slots) != 1 {
		t.Fatalf("available slots = %d, want 1", len(open.Slots))
	}
	err = conn.Invoke(outgoing("c1"), "/appointly.v1.AvailabilityService/ListAvailableSlots",
		&ListAvailableSlotsRequest{ProviderId: "ghost"}, &ListSlotsResponse{})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("unknown provider code = %s, want NotFound", status.Code(err))
	}

	var header metadata.MD
	var booked BookingResponse
	req := &CreateBookingRequest{ProviderId: "p1", Service: "Consultation", StartTime: NewTimestamp(start), EndTime: NewTimestamp(end)}
	ctx := metadata.AppendToOutgoingContext(outgoing("c1"), RequestIDHeader, "trace-me")
	if err := conn.Invoke(ctx, "/appointly.v1.BookingService/CreateBooking", req, &booked, grpc.Header(&header)); err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if booked.Booking.Status != "pending" || booked.Booking.DurationMinutes != 60 {
		t.Fatalf("booking = %+v", booked.Booking)
	}
	if got := header.Get(RequestIDHeader); len(got) != 1 || got[0] != "trace-me" {
		t.Fatalf("request id header = %v", got)
	}

	err = conn.Invoke(outgoing("c1"), "/appointly.v1.BookingService/CreateBooking", req, &BookingResponse{})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("second booking code = %s, want FailedPrecondition", status.Code(err))
	}

	err = conn.Invoke(outgoing("p1"), "/appointly.v1.AvailabilityService/DeleteSlot",
		&DeleteSlotRequest{SlotId: slot.Slot.Id}, &DeleteSlotResponse{})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("delete booked slot code = %s, want FailedPrecondition", status.Code(err))
	}

	var paid BookingResponse
	if err := conn.Invoke(outgoing("c1"), "/appointly.v1.BookingService/RecordPayment",
		&RecordPaymentRequest{BookingId: booked.Booking.Id, Amount: 4200, Method: "stripe"}, &paid); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if paid.Booking.Status != "confirmed" || paid.Booking.PaymentStatus != "paid" || paid.Booking.PaymentId == "" {
		t.Fatalf("paid booking = %+v", paid.Booking)
	}

	var cancelled BookingResponse
	if err := conn.Invoke(outgoing("c1"), "/appointly.v1.BookingService/CancelBooking",
		&CancelBookingRequest{BookingId: booked.Booking.Id}, &cancelled); err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}
	if cancelled.Booking.Status != "cancelled" || cancelled.Booking.CancellationReason != bookings.ClientCancelReason {
		t.Fatalf("cancelled booking = %+v", cancelled.Booking)
	}

	var mine ListSlotsResponse
	if err := conn.Invoke(outgoing("p1"), "/appointly.v1.AvailabilityService/ListMySlots", &ListMySlotsRequest{}, &mine); err != nil {
		t.Fatalf("ListMySlots: %v", err)
	}
	if len(mine.Slots) != 1 || mine.Slots[0].Status != "available" {
		t.Fatalf("slots after cancel = %+v", mine.Slots)
	}

	err = conn.Invoke(outgoing("c1"), "/appointly.v1.AvailabilityService/CreateSlot",
		&CreateSlotRequest{StartTime: NewTimestamp(start), EndTime: NewTimestamp(end)}, &CreateSlotResponse{})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("client creating slot code = %s, want PermissionDenied", status.Code(err))
	}
}

func TestServer_HealthUsesProtoCodec(t *testing.T) {
	conn := startServer(t)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{},
		grpc.CallContentSubtype("proto"))
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health = %s, want SERVING", resp.GetStatus())
	}
}
