package postgres

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

// openTestRepo creates a throwaway schema, points a fresh pool at it through
// search_path and applies the migrations there.
func openTestRepo(t *testing.T) *Repo {
	t.Helper()

	databaseURL := strings.TrimSpace(os.Getenv("APPOINTLY_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("APPOINTLY_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	schema := "appointly_test_" + randomHex(t, 8)
	if _, err := admin.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = admin.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
		_ = Close(admin)
	})

	u, err := url.Parse(databaseURL)
	if err != nil {
		t.Fatalf("parse database url: %v", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	db, err := Open(ctx, u.String(), PoolConfig{MaxOpenConns: 8})
	if err != nil {
		t.Fatalf("Open scoped error: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })

	if err := applyMigrations(ctx, db); err != nil {
		t.Fatalf("applyMigrations error: %v", err)
	}
	return NewRepo(db)
}

func insertSlot(t *testing.T, repo *Repo, providerID string, r domain.TimeRange) domain.AvailabilitySlot {
	t.Helper()
	var out domain.AvailabilitySlot
	err := repo.InProviderTransaction(context.Background(), providerID, func(ctx context.Context, tx store.ProviderTx) error {
		rows, err := tx.InsertSlots(ctx, []domain.AvailabilitySlot{{
			ProviderID: providerID,
			StartTime:  r.Start,
			EndTime:    r.End,
			Recurrence: domain.RecurrenceNone,
			Status:     domain.SlotStatusAvailable,
		}})
		if err != nil {
			return err
		}
		out = rows[0]
		return nil
	})
	if err != nil {
		t.Fatalf("insert slot: %v", err)
	}
	return out
}

func bookingFor(clientID, providerID string, r domain.TimeRange) domain.Booking {
	return domain.Booking{
		ClientID:      clientID,
		ProviderID:    providerID,
		Service:       "consultation",
		StartTime:     r.Start,
		EndTime:       r.End,
		Duration:      r.Minutes(),
		Status:        domain.BookingStatusPending,
		PaymentStatus: domain.PaymentStatusNotPaid,
	}
}

func TestPostgresIntegration_ConcurrentClaimHasOneWinner(t *testing.T) {
	repo := openTestRepo(t)
	r := domain.TimeRange{
		Start: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
	slot := insertSlot(t, repo, "p1", r)

	const racers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		losses  int
		unknown []error
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.InProviderTransaction(context.Background(), "p1", func(ctx context.Context, tx store.ProviderTx) error {
				found, err := tx.FindSlot(ctx, "p1", r, domain.SlotStatusAvailable)
				if err != nil {
					return err
				}
				if _, err := tx.InsertBooking(ctx, bookingFor("c"+string(rune('a'+i)), "p1", r)); err != nil {
					return err
				}
				return tx.CompareAndSetSlotStatus(ctx, found.ID, domain.SlotStatusAvailable, domain.SlotStatusBooked)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrConflict):
				losses++
			default:
				unknown = append(unknown, err)
			}
		}(i)
	}
	wg.Wait()

	if len(unknown) > 0 {
		t.Fatalf("unexpected errors: %v", unknown)
	}
	if wins != 1 || losses != racers-1 {
		t.Fatalf("wins=%d losses=%d, want 1/%d", wins, losses, racers-1)
	}

	got, err := repo.GetSlot(context.Background(), slot.ID)
	if err != nil {
		t.Fatalf("GetSlot error: %v", err)
	}
	if got.Status != domain.SlotStatusBooked {
		t.Fatalf("slot status = %q, want booked", got.Status)
	}
	bookings, err := repo.ListBookings(context.Background(), store.BookingFilter{ProviderID: "p1"})
	if err != nil {
		t.Fatalf("ListBookings error: %v", err)
	}
	if len(bookings) != 1 {
		t.Fatalf("bookings = %d, want 1", len(bookings))
	}
}

func TestPostgresIntegration_ActiveRangeIndexAndRollback(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	r := domain.TimeRange{
		Start: time.Date(2026, 5, 5, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 5, 5, 9, 30, 0, 0, time.UTC),
	}
	slot := insertSlot(t, repo, "p2", r)

	var first domain.Booking
	err := repo.InProviderTransaction(ctx, "p2", func(ctx context.Context, tx store.ProviderTx) error {
		b, err := tx.InsertBooking(ctx, bookingFor("c1", "p2", r))
		first = b
		return err
	})
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}

	err = repo.InProviderTransaction(ctx, "p2", func(ctx context.Context, tx store.ProviderTx) error {
		_, err := tx.InsertBooking(ctx, bookingFor("c2", "p2", r))
		return err
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second insert err = %v, want ErrConflict", err)
	}

	boom := errors.New("boom")
	err = repo.InProviderTransaction(ctx, "p2", func(ctx context.Context, tx store.ProviderTx) error {
		if err := tx.CompareAndSetSlotStatus(ctx, slot.ID, domain.SlotStatusAvailable, domain.SlotStatusBooked); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	got, err := repo.GetSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("GetSlot error: %v", err)
	}
	if got.Status != domain.SlotStatusAvailable {
		t.Fatalf("slot status = %q, want available after rollback", got.Status)
	}

	first.Status = domain.BookingStatusCancelled
	first.CancellationReason = "Client cancelled"
	err = repo.InProviderTransaction(ctx, "p2", func(ctx context.Context, tx store.ProviderTx) error {
		if err := tx.UpdateBooking(ctx, first); err != nil {
			return err
		}
		held, err := tx.HasActiveBooking(ctx, "p2", r)
		if err != nil {
			return err
		}
		if held {
			return errors.New("cancelled booking still holds the range")
		}
		_, err = tx.InsertBooking(ctx, bookingFor("c2", "p2", r))
		return err
	})
	if err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}

	stored, err := repo.GetBooking(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetBooking error: %v", err)
	}
	if stored.Status != domain.BookingStatusCancelled || stored.CancellationReason != "Client cancelled" {
		t.Fatalf("stored booking = %+v", stored)
	}
}

func TestPostgresIntegration_UsersAndPayments(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if _, err := repo.db.NewInsert().Model(&domain.User{ID: "p3", Role: domain.RoleProvider}).Exec(ctx); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	u, err := repo.GetUser(ctx, "p3")
	if err != nil || u.Role != domain.RoleProvider {
		t.Fatalf("GetUser = %+v, %v", u, err)
	}
	if _, err := repo.GetUser(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetUser(missing) err = %v, want ErrNotFound", err)
	}

	r := domain.TimeRange{
		Start: time.Date(2026, 5, 6, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC),
	}
	err = repo.InProviderTransaction(ctx, "p3", func(ctx context.Context, tx store.ProviderTx) error {
		b, err := tx.InsertBooking(ctx, bookingFor("c1", "p3", r))
		if err != nil {
			return err
		}
		p, err := tx.InsertPayment(ctx, domain.Payment{
			BookingID: b.ID, Amount: 5000, Currency: domain.DefaultCurrency,
			Method: domain.PaymentMethodStripe, Status: domain.PaymentRecordCompleted, TransactionID: "TR-1-1",
		})
		if err != nil {
			return err
		}
		b.PaymentStatus = domain.PaymentStatusPaid
		b.PaymentID = &p.ID
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		t.Fatalf("payment tx: %v", err)
	}

	bookings, err := repo.ListBookings(ctx, store.BookingFilter{ClientID: "c1", Status: domain.BookingStatusPending})
	if err != nil {
		t.Fatalf("ListBookings error: %v", err)
	}
	if len(bookings) != 1 || bookings[0].PaymentID == nil || bookings[0].PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("bookings = %+v", bookings)
	}
}
