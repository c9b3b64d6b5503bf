package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const DefaultCurrency = "USD"

type PaymentMethod string

const (
	PaymentMethodStripe   PaymentMethod = "stripe"
	PaymentMethodRazorpay PaymentMethod = "razorpay"
	PaymentMethodPaypal   PaymentMethod = "paypal"
	PaymentMethodOther    PaymentMethod = "other"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case PaymentMethodStripe, PaymentMethodRazorpay, PaymentMethodPaypal, PaymentMethodOther:
		return m, nil
	}
	return "", Errorf(KindInvalidArgument, "invalid payment method %q", s)
}

type PaymentRecordStatus string

const (
	PaymentRecordPending   PaymentRecordStatus = "pending"
	PaymentRecordCompleted PaymentRecordStatus = "completed"
	PaymentRecordFailed    PaymentRecordStatus = "failed"
	PaymentRecordRefunded  PaymentRecordStatus = "refunded"
)

// Payment amounts are in minor currency units.
type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID            uuid.UUID           `bun:"id,pk,type:uuid"`
	BookingID     uuid.UUID           `bun:"booking_id,notnull,type:uuid"`
	Amount        int64               `bun:"amount,notnull"`
	Currency      string              `bun:"currency,notnull"`
	Method        PaymentMethod       `bun:"method,notnull"`
	Status        PaymentRecordStatus `bun:"status,notnull"`
	TransactionID string              `bun:"transaction_id"`
	CreatedAt     time.Time           `bun:"created_at,notnull"`
	UpdatedAt     time.Time           `bun:"updated_at,notnull"`
}

func (p *Payment) Validate() error {
	if p.BookingID == uuid.Nil {
		return Errorf(KindInvalidArgument, "booking_id is required")
	}
	if p.Amount <= 0 {
		return Errorf(KindInvalidArgument, "amount must be positive")
	}
	if len(p.Currency) != 3 {
		return Errorf(KindInvalidArgument, "invalid currency %q", p.Currency)
	}
	if _, err := ParsePaymentMethod(string(p.Method)); err != nil {
		return err
	}
	return nil
}

func (p *Payment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if p == nil {
		return nil
	}
	return stampModel(query, &p.ID, &p.CreatedAt, &p.UpdatedAt)
}
