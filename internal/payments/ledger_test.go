package payments

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

type fakeTx struct {
	store.ProviderTx
	insertPaymentFn func(ctx context.Context, p domain.Payment) (domain.Payment, error)
}

func (f *fakeTx) InsertPayment(ctx context.Context, p domain.Payment) (domain.Payment, error) {
	if f.insertPaymentFn == nil {
		panic("InsertPayment not configured")
	}
	return f.insertPaymentFn(ctx, p)
}

func TestLedgerRecorder_CreatePayment(t *testing.T) {
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	r := NewLedgerRecorder(WithClock(func() time.Time { return now }))

	var inserted domain.Payment
	tx := &fakeTx{insertPaymentFn: func(ctx context.Context, p domain.Payment) (domain.Payment, error) {
		p.ID = uuid.New()
		inserted = p
		return p, nil
	}}

	bookingID := uuid.New()
	p, err := r.CreatePayment(context.Background(), tx, Input{BookingID: bookingID, Amount: 1500, Method: "Stripe"})
	if err != nil {
		t.Fatalf("CreatePayment error: %v", err)
	}
	if p.ID == uuid.Nil || p.BookingID != bookingID {
		t.Fatalf("payment = %+v", p)
	}
	if inserted.Currency != domain.DefaultCurrency || inserted.Method != domain.PaymentMethodStripe || inserted.Status != domain.PaymentRecordCompleted {
		t.Fatalf("inserted = %+v", inserted)
	}
	pattern := regexp.MustCompile(`^TR-1770091506000-\d{1,3}$`)
	if !pattern.MatchString(inserted.TransactionID) {
		t.Fatalf("transaction id = %q", inserted.TransactionID)
	}
}

func TestLedgerRecorder_RejectsBadInput(t *testing.T) {
	r := NewLedgerRecorder()
	tx := &fakeTx{}

	tests := []struct {
		name string
		in   Input
	}{
		{"unknown method", Input{BookingID: uuid.New(), Amount: 100, Method: "cash"}},
		{"zero amount", Input{BookingID: uuid.New(), Amount: 0, Method: "paypal"}},
		{"bad currency", Input{BookingID: uuid.New(), Amount: 100, Currency: "EURO", Method: "paypal"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.CreatePayment(context.Background(), tx, tt.in); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}
