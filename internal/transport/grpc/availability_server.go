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
	"appointly/backend/internal/service/availability"
)

type availabilityService interface {
	Create(ctx context.Context, in availability.CreateInput) (domain.AvailabilitySlot, error)
	CreateSeries(ctx context.Context, in availability.CreateInput) ([]domain.AvailabilitySlot, error)
	ListForProvider(ctx context.Context, providerID string, window *domain.TimeRange) ([]domain.AvailabilitySlot, error)
	ListAvailable(ctx context.Context, providerID string, window *domain.TimeRange) ([]domain.AvailabilitySlot, error)
	Update(ctx context.Context, in availability.UpdateInput) (domain.AvailabilitySlot, error)
	Delete(ctx context.Context, requesterProviderID string, slotID uuid.UUID) error
}

type AvailabilityServiceServer interface {
	CreateSlot(context.Context, *CreateSlotRequest) (*CreateSlotResponse, error)
	CreateSlotSeries(context.Context, *CreateSlotRequest) (*CreateSlotSeriesResponse, error)
	ListMySlots(context.Context, *ListMySlotsRequest) (*ListSlotsResponse, error)
	ListAvailableSlots(context.Context, *ListAvailableSlotsRequest) (*ListSlotsResponse, error)
	UpdateSlot(context.Context, *UpdateSlotRequest) (*UpdateSlotResponse, error)
	DeleteSlot(context.Context, *DeleteSlotRequest) (*DeleteSlotResponse, error)
}

type AvailabilityServer struct {
	svc   availabilityService
	users identity.Resolver
	log   *slog.Logger
}

func NewAvailabilityServer(svc availabilityService, users identity.Resolver, log *slog.Logger) *AvailabilityServer {
	if log == nil {
		log = slog.Default()
	}
	return &AvailabilityServer{
		svc:   svc,
		users: users,
		log:   log.With(slog.String("component", "grpc.availability")),
	}
}

func (s *AvailabilityServer) createInput(ctx context.Context, log *slog.Logger, req *CreateSlotRequest) (availability.CreateInput, error) {
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return availability.CreateInput{}, status.Error(codes.InvalidArgument, "request is required")
	}
	providerID, err := caller(ctx, s.users, domain.RoleProvider)
	if err != nil {
		return availability.CreateInput{}, err
	}
	if req.StartTime == nil || req.EndTime == nil {
		log.Warn("invalid request", slog.String("reason", "missing_times"), slog.String("provider_id", providerID))
		return availability.CreateInput{}, status.Error(codes.InvalidArgument, "start_time and end_time are required")
	}
	return availability.CreateInput{
		ProviderID:        providerID,
		StartTime:         req.StartTime.AsTime(),
		EndTime:           req.EndTime.AsTime(),
		Recurrence:        domain.Recurrence(req.Recurrence),
		RecurrenceEndDate: optionalTime(req.RecurrenceEndDate),
	}, nil
}

func (s *AvailabilityServer) CreateSlot(ctx context.Context, req *CreateSlotRequest) (*CreateSlotResponse, error) {
	log := rpcLogger(ctx, s.log, "CreateSlot")
	in, err := s.createInput(ctx, log, req)
	if err != nil {
		return nil, err
	}

	slot, err := s.svc.Create(ctx, in)
	if err != nil {
		return nil, statusError(ctx, log, "slot create", err, slog.String("provider_id", in.ProviderID))
	}

	log.Info("slot created",
		slog.String("slot_id", slot.ID.String()),
		slog.String("provider_id", slot.ProviderID),
		slog.Time("start_time", slot.StartTime),
		slog.Time("end_time", slot.EndTime),
	)
	return &CreateSlotResponse{Slot: toSlot(slot)}, nil
}

func (s *AvailabilityServer) CreateSlotSeries(ctx context.Context, req *CreateSlotRequest) (*CreateSlotSeriesResponse, error) {
	log := rpcLogger(ctx, s.log, "CreateSlotSeries")
	in, err := s.createInput(ctx, log, req)
	if err != nil {
		return nil, err
	}

	slots, err := s.svc.CreateSeries(ctx, in)
	if err != nil {
		return nil, statusError(ctx, log, "slot series create", err, slog.String("provider_id", in.ProviderID))
	}
	return &CreateSlotSeriesResponse{Slots: toSlots(slots)}, nil
}

func (s *AvailabilityServer) ListMySlots(ctx context.Context, req *ListMySlotsRequest) (*ListSlotsResponse, error) {
	log := rpcLogger(ctx, s.log, "ListMySlots")
	if req == nil {
		req = &ListMySlotsRequest{}
	}
	providerID, err := caller(ctx, s.users, domain.RoleProvider)
	if err != nil {
		return nil, err
	}
	w, ok := window(req.WindowStart, req.WindowEnd)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "window_start and window_end must be set together")
	}

	slots, err := s.svc.ListForProvider(ctx, providerID, w)
	if err != nil {
		return nil, statusError(ctx, log, "slots list", err, slog.String("provider_id", providerID))
	}
	log.Debug("slots listed", slog.String("provider_id", providerID), slog.Int("count", len(slots)))
	return &ListSlotsResponse{Slots: toSlots(slots)}, nil
}

func (s *AvailabilityServer) ListAvailableSlots(ctx context.Context, req *ListAvailableSlotsRequest) (*ListSlotsResponse, error) {
	log := rpcLogger(ctx, s.log, "ListAvailableSlots")
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if _, err := caller(ctx, nil, ""); err != nil {
		return nil, err
	}
	w, ok := window(req.WindowStart, req.WindowEnd)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "window_start and window_end must be set together")
	}

	slots, err := s.svc.ListAvailable(ctx, req.ProviderId, w)
	if err != nil {
		return nil, statusError(ctx, log, "available slots list", err, slog.String("provider_id", req.ProviderId))
	}
	log.Debug("available slots listed", slog.String("provider_id", req.ProviderId), slog.Int("count", len(slots)))
	return &ListSlotsResponse{Slots: toSlots(slots)}, nil
}

func (s *AvailabilityServer) UpdateSlot(ctx context.Context, req *UpdateSlotRequest) (*UpdateSlotResponse, error) {
	log := rpcLogger(ctx, s.log, "UpdateSlot")
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	providerID, err := caller(ctx, s.users, domain.RoleProvider)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(req.SlotId)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("provider_id", providerID))
		return nil, status.Error(codes.InvalidArgument, "slot_id must be a UUID")
	}

	in := availability.UpdateInput{
		ProviderID: providerID,
		SlotID:     id,
		StartTime:  optionalTime(req.StartTime),
		EndTime:    optionalTime(req.EndTime),
	}
	if req.Status != "" {
		st := domain.SlotStatus(req.Status)
		in.Status = &st
	}

	slot, err := s.svc.Update(ctx, in)
	if err != nil {
		return nil, statusError(ctx, log, "slot update", err, slog.String("slot_id", id.String()), slog.String("provider_id", providerID))
	}
	log.Info("slot updated", slog.String("slot_id", id.String()), slog.String("status", string(slot.Status)))
	return &UpdateSlotResponse{Slot: toSlot(slot)}, nil
}

func (s *AvailabilityServer) DeleteSlot(ctx context.Context, req *DeleteSlotRequest) (*DeleteSlotResponse, error) {
	log := rpcLogger(ctx, s.log, "DeleteSlot")
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	providerID, err := caller(ctx, s.users, domain.RoleProvider)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(req.SlotId)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("provider_id", providerID))
		return nil, status.Error(codes.InvalidArgument, "slot_id must be a UUID")
	}

	if err := s.svc.Delete(ctx, providerID, id); err != nil {
		return nil, statusError(ctx, log, "slot delete", err, slog.String("slot_id", id.String()), slog.String("provider_id", providerID))
	}
	log.Info("slot deleted", slog.String("slot_id", id.String()), slog.String("provider_id", providerID))
	return &DeleteSlotResponse{}, nil
}

const availabilityServiceName = "appointly.v1.AvailabilityService"

var AvailabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: availabilityServiceName,
	HandlerType: (*AvailabilityServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(availabilityServiceName, "CreateSlot", AvailabilityServiceServer.CreateSlot),
		unary(availabilityServiceName, "CreateSlotSeries", AvailabilityServiceServer.CreateSlotSeries),
		unary(availabilityServiceName, "ListMySlots", AvailabilityServiceServer.ListMySlots),
		unary(availabilityServiceName, "ListAvailableSlots", AvailabilityServiceServer.ListAvailableSlots),
		unary(availabilityServiceName, "UpdateSlot", AvailabilityServiceServer.UpdateSlot),
		unary(availabilityServiceName, "DeleteSlot", AvailabilityServiceServer.DeleteSlot),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "appointly/v1/availability.proto",
}

func RegisterAvailabilityServiceServer(s grpc.ServiceRegistrar, srv AvailabilityServiceServer) {
	s.RegisterService(&AvailabilityServiceDesc, srv)
}

var _ AvailabilityServiceServer = (*AvailabilityServer)(nil)
