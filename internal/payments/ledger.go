// Package payments records payments against bookings. Charging a card is the
// gateway's job; this package only writes the ledger entry.
package payments

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

type Input struct {
	BookingID uuid.UUID
	Amount    int64
	Currency  string
	Method    string
}

// Collaborator creates a payment inside the caller's transaction, so the
// payment and the booking update commit or roll back together.
type Collaborator interface {
	CreatePayment(ctx context.Context, tx store.ProviderTx, in Input) (domain.Payment, error)
}

type LedgerRecorder struct {
	now   func() time.Time
	randN func(n int) int
}

type Option func(*LedgerRecorder)

func WithClock(now func() time.Time) Option {
	return func(r *LedgerRecorder) {
		if now != nil {
			r.now = now
		}
	}
}

func NewLedgerRecorder(opts ...Option) *LedgerRecorder {
	r := &LedgerRecorder{
		now:   func() time.Time { return time.Now().UTC() },
		randN: rand.Intn,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *LedgerRecorder) CreatePayment(ctx context.Context, tx store.ProviderTx, in Input) (domain.Payment, error) {
	method, err := domain.ParsePaymentMethod(in.Method)
	if err != nil {
		return domain.Payment{}, err
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	p := domain.Payment{
		BookingID:     in.BookingID,
		Amount:        in.Amount,
		Currency:      currency,
		Method:        method,
		Status:        domain.PaymentRecordCompleted,
		TransactionID: r.transactionID(),
	}
	if err := p.Validate(); err != nil {
		return domain.Payment{}, err
	}

	stored, err := tx.InsertPayment(ctx, p)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	return stored, nil
}

// transactionID has the form TR-<unix millis>-<0..999>.
func (r *LedgerRecorder) transactionID() string {
	return fmt.Sprintf("TR-%d-%d", r.now().UnixMilli(), r.randN(1000))
}
