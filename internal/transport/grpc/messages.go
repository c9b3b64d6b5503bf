package grpc

import (
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/timestamppb"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/service/bookings"
)

// Timestamp is a protobuf timestamp that encodes to JSON the way protojson
// does, as an RFC 3339 string.
type Timestamp struct {
	*timestamppb.Timestamp
}

func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Timestamp: timestamppb.New(t)}
}

func (t *Timestamp) MarshalJSON() ([]byte, error) {
	return protojson.Marshal(t.Timestamp)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	ts := &timestamppb.Timestamp{}
	if err := protojson.Unmarshal(data, ts); err != nil {
		return err
	}
	t.Timestamp = ts
	return nil
}

type Slot struct {
	Id                string                 `json:"id"`
	ProviderId        string                 `json:"provider_id"`
	StartTime         *Timestamp `json:"start_time"`
	EndTime           *Timestamp `json:"end_time"`
	Recurrence        string                 `json:"recurrence"`
	RecurrenceEndDate *Timestamp `json:"recurrence_end_date,omitempty"`
	Status            string                 `json:"status"`
	CreatedAt         *Timestamp `json:"created_at"`
	UpdatedAt         *Timestamp `json:"updated_at"`
}

type Booking struct {
	Id                 string                 `json:"id"`
	ClientId           string                 `json:"client_id"`
	ProviderId         string                 `json:"provider_id"`
	Service            string                 `json:"service"`
	StartTime          *Timestamp `json:"start_time"`
	EndTime            *Timestamp `json:"end_time"`
	DurationMinutes    int32                  `json:"duration_minutes"`
	Status             string                 `json:"status"`
	PaymentStatus      string                 `json:"payment_status"`
	PaymentId          string                 `json:"payment_id,omitempty"`
	Notes              string                 `json:"notes,omitempty"`
	CancellationReason string                 `json:"cancellation_reason,omitempty"`
	CreatedAt          *Timestamp `json:"created_at"`
	UpdatedAt          *Timestamp `json:"updated_at"`
}

type CreateSlotRequest struct {
	StartTime         *Timestamp `json:"start_time"`
	EndTime           *Timestamp `json:"end_time"`
	Recurrence        string                 `json:"recurrence,omitempty"`
	RecurrenceEndDate *Timestamp `json:"recurrence_end_date,omitempty"`
}

type CreateSlotResponse struct {
	Slot *Slot `json:"slot"`
}

type CreateSlotSeriesResponse struct {
	Slots []*Slot `json:"slots"`
}

type ListMySlotsRequest struct {
	WindowStart *Timestamp `json:"window_start,omitempty"`
	WindowEnd   *Timestamp `json:"window_end,omitempty"`
}

type ListAvailableSlotsRequest struct {
	ProviderId  string                 `json:"provider_id"`
	WindowStart *Timestamp `json:"window_start,omitempty"`
	WindowEnd   *Timestamp `json:"window_end,omitempty"`
}

type ListSlotsResponse struct {
	Slots []*Slot `json:"slots"`
}

// UpdateSlotRequest leaves a field unchanged when it is unset.
type UpdateSlotRequest struct {
	SlotId    string                 `json:"slot_id"`
	StartTime *Timestamp `json:"start_time,omitempty"`
	EndTime   *Timestamp `json:"end_time,omitempty"`
	Status    string                 `json:"status,omitempty"`
}

type UpdateSlotResponse struct {
	Slot *Slot `json:"slot"`
}

type DeleteSlotRequest struct {
	SlotId string `json:"slot_id"`
}

type DeleteSlotResponse struct{}

type CreateBookingRequest struct {
	ProviderId string                 `json:"provider_id"`
	Service    string                 `json:"service"`
	StartTime  *Timestamp `json:"start_time"`
	EndTime    *Timestamp `json:"end_time"`
	Notes      string                 `json:"notes,omitempty"`
}

type BookingResponse struct {
	Booking *Booking `json:"booking"`
}

type GetBookingRequest struct {
	BookingId string `json:"booking_id"`
}

type ListBookingsRequest struct {
	Status      string                 `json:"status,omitempty"`
	WindowStart *Timestamp `json:"window_start,omitempty"`
	WindowEnd   *Timestamp `json:"window_end,omitempty"`
}

type ListBookingsResponse struct {
	Bookings []*Booking `json:"bookings"`
}

type CancelBookingRequest struct {
	BookingId string `json:"booking_id"`
	Reason    string `json:"reason,omitempty"`
}

type UpdateBookingStatusRequest struct {
	BookingId string `json:"booking_id"`
	Status    string `json:"status"`
}

type RecordPaymentRequest struct {
	BookingId string `json:"booking_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency,omitempty"`
	Method    string `json:"method"`
}

type ProviderDashboardRequest struct{}

type ProviderDashboardResponse struct {
	CountsByStatus         map[string]int32 `json:"counts_by_status"`
	Upcoming               []*Booking       `json:"upcoming"`
	TotalUpcoming          int32            `json:"total_upcoming"`
	HoursAvailableThisWeek float64          `json:"hours_available_this_week"`
}

func toSlot(s domain.AvailabilitySlot) *Slot {
	out := &Slot{
		Id:         s.ID.String(),
		ProviderId: s.ProviderID,
		StartTime:  NewTimestamp(s.StartTime),
		EndTime:    NewTimestamp(s.EndTime),
		Recurrence: string(s.Recurrence),
		Status:     string(s.Status),
		CreatedAt:  NewTimestamp(s.CreatedAt),
		UpdatedAt:  NewTimestamp(s.UpdatedAt),
	}
	if s.RecurrenceEndDate != nil {
		out.RecurrenceEndDate = NewTimestamp(s.RecurrenceEndDate.UTC())
	}
	return out
}

func toSlots(in []domain.AvailabilitySlot) []*Slot {
	out := make([]*Slot, 0, len(in))
	for _, s := range in {
		out = append(out, toSlot(s))
	}
	return out
}

func toBooking(b domain.Booking) *Booking {
	out := &Booking{
		Id:                 b.ID.String(),
		ClientId:           b.ClientID,
		ProviderId:         b.ProviderID,
		Service:            b.Service,
		StartTime:          NewTimestamp(b.StartTime),
		EndTime:            NewTimestamp(b.EndTime),
		DurationMinutes:    int32(b.Duration),
		Status:             string(b.Status),
		PaymentStatus:      string(b.PaymentStatus),
		Notes:              b.Notes,
		CancellationReason: b.CancellationReason,
		CreatedAt:          NewTimestamp(b.CreatedAt),
		UpdatedAt:          NewTimestamp(b.UpdatedAt),
	}
	if b.PaymentID != nil {
		out.PaymentId = b.PaymentID.String()
	}
	return out
}

func toBookings(in []domain.Booking) []*Booking {
	out := make([]*Booking, 0, len(in))
	for _, b := range in {
		out = append(out, toBooking(b))
	}
	return out
}

func toDashboard(d bookings.Dashboard) *ProviderDashboardResponse {
	counts := make(map[string]int32, len(d.CountsByStatus))
	for st, n := range d.CountsByStatus {
		counts[string(st)] = int32(n)
	}
	return &ProviderDashboardResponse{
		CountsByStatus:         counts,
		Upcoming:               toBookings(d.Upcoming),
		TotalUpcoming:          int32(d.TotalUpcoming),
		HoursAvailableThisWeek: d.HoursAvailableThisWeek,
	}
}

// window returns nil when both bounds are unset. A single bound is an error the
// caller reports as InvalidArgument.
func window(start, end *Timestamp) (*domain.TimeRange, bool) {
	if start == nil && end == nil {
		return nil, true
	}
	if start == nil || end == nil {
		return nil, false
	}
	return &domain.TimeRange{Start: start.AsTime(), End: end.AsTime()}, true
}

func optionalTime(ts *Timestamp) *time.Time {
	if ts == nil {
		return nil
	}
	t := ts.AsTime()
	return &t
}
