package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

const (
	pgUniqueViolation = "23505"
	activeRangeIndex  = "bookings_active_range"
)

type Repo struct {
	db *bun.DB
}

func NewRepo(db *bun.DB) *Repo {
	return &Repo{db: db}
}

type providerTx struct {
	tx bun.Tx
}

func (r *Repo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProvider(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, providerTx{tx: tx})
	})
}

func lockProvider(ctx context.Context, tx bun.Tx, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerID).Exec(ctx)
	return err
}

func (r *Repo) GetSlot(ctx context.Context, id uuid.UUID) (domain.AvailabilitySlot, error) {
	return getSlot(ctx, r.db, id)
}

func (r *Repo) ListSlots(ctx context.Context, filter store.SlotFilter) ([]domain.AvailabilitySlot, error) {
	var rows []domain.AvailabilitySlot
	q := r.db.NewSelect().Model(&rows)
	if filter.ProviderID != "" {
		q = q.Where("provider_id = ?", filter.ProviderID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Window != nil {
		q = q.Where("start_time >= ?", filter.Window.Start).Where("start_time <= ?", filter.Window.End)
	}
	if err := q.OrderExpr("start_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return getBooking(ctx, r.db, id, false)
}

func (r *Repo) ListBookings(ctx context.Context, filter store.BookingFilter) ([]domain.Booking, error) {
	var rows []domain.Booking
	q := r.db.NewSelect().Model(&rows)
	if filter.ClientID != "" {
		q = q.Where("client_id = ?", filter.ClientID)
	}
	if filter.ProviderID != "" {
		q = q.Where("provider_id = ?", filter.ProviderID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Window != nil {
		q = q.Where("start_time >= ?", filter.Window.Start).Where("start_time <= ?", filter.Window.End)
	}
	if err := q.OrderExpr("start_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.db.NewSelect().Model(&u).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return domain.User{}, notFound(err)
	}
	return u, nil
}

func getSlot(ctx context.Context, db bun.IDB, id uuid.UUID) (domain.AvailabilitySlot, error) {
	var m domain.AvailabilitySlot
	err := db.NewSelect().Model(&m).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return domain.AvailabilitySlot{}, notFound(err)
	}
	return m, nil
}

func getBooking(ctx context.Context, db bun.IDB, id uuid.UUID, forUpdate bool) (domain.Booking, error) {
	var m domain.Booking
	q := db.NewSelect().Model(&m).Where("id = ?", id).Limit(1)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return domain.Booking{}, notFound(err)
	}
	return m, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// translateInsertError maps a violation of the active-booking index to
// store.ErrConflict and passes every other error through.
func translateInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == activeRangeIndex {
		return store.ErrConflict
	}
	return err
}

func (r providerTx) InsertSlots(ctx context.Context, slots []domain.AvailabilitySlot) ([]domain.AvailabilitySlot, error) {
	if len(slots) == 0 {
		return nil, nil
	}
	rows := make([]domain.AvailabilitySlot, len(slots))
	copy(rows, slots)
	if _, err := r.tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r providerTx) GetSlot(ctx context.Context, id uuid.UUID) (domain.AvailabilitySlot, error) {
	var m domain.AvailabilitySlot
	err := r.tx.NewSelect().Model(&m).Where("id = ?", id).Limit(1).For("UPDATE").Scan(ctx)
	if err != nil {
		return domain.AvailabilitySlot{}, notFound(err)
	}
	return m, nil
}

func (r providerTx) FindSlot(ctx context.Context, providerID string, tr domain.TimeRange, status domain.SlotStatus) (domain.AvailabilitySlot, error) {
	var m domain.AvailabilitySlot
	err := r.tx.NewSelect().
		Model(&m).
		Where("provider_id = ?", providerID).
		Where("start_time = ?", tr.Start).
		Where("end_time = ?", tr.End).
		Where("status = ?", status).
		OrderExpr("created_at ASC").
		Limit(1).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return domain.AvailabilitySlot{}, notFound(err)
	}
	return m, nil
}

func (r providerTx) CompareAndSetSlotStatus(ctx context.Context, id uuid.UUID, from, to domain.SlotStatus) error {
	res, err := r.tx.NewUpdate().
		Model((*domain.AvailabilitySlot)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrConflict
	}
	return nil
}

func (r providerTx) UpdateSlotRange(ctx context.Context, id uuid.UUID, tr domain.TimeRange) error {
	res, err := r.tx.NewUpdate().
		Model((*domain.AvailabilitySlot)(nil)).
		Set("start_time = ?", tr.Start).
		Set("end_time = ?", tr.End).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r providerTx) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	res, err := r.tx.NewDelete().
		Model((*domain.AvailabilitySlot)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r providerTx) InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	m := b
	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Booking{}, translateInsertError(err)
	}
	return m, nil
}

func (r providerTx) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return getBooking(ctx, r.tx, id, true)
}

func (r providerTx) UpdateBooking(ctx context.Context, b domain.Booking) error {
	res, err := r.tx.NewUpdate().
		Model(&b).
		Column("status", "payment_status", "payment_id", "cancellation_reason", "notes", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return translateInsertError(err)
	}
	return requireAffected(res)
}

func (r providerTx) HasActiveBooking(ctx context.Context, providerID string, tr domain.TimeRange) (bool, error) {
	return r.tx.NewSelect().
		Model((*domain.Booking)(nil)).
		Where("provider_id = ?", providerID).
		Where("start_time = ?", tr.Start).
		Where("end_time = ?", tr.End).
		Where("status <> ?", domain.BookingStatusCancelled).
		Exists(ctx)
}

func (r providerTx) InsertPayment(ctx context.Context, p domain.Payment) (domain.Payment, error) {
	m := p
	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Payment{}, err
	}
	return m, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

var (
	_ store.Repository    = (*Repo)(nil)
	_ store.UserDirectory = (*Repo)(nil)
)
