// Package mongodb implements store.Repository on MongoDB. Transactions need a
// replica set or sharded cluster.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

const (
	slotsCollection    = "availability_slots"
	bookingsCollection = "bookings"
	paymentsCollection = "payments"
	usersCollection    = "users"
	locksCollection    = "provider_locks"
)

type Store struct {
	client   *mongo.Client
	slots    *mongo.Collection
	bookings *mongo.Collection
	payments *mongo.Collection
	users    *mongo.Collection
	locks    *mongo.Collection
}

func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return New(client, database), nil
}

func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:   client,
		slots:    db.Collection(slotsCollection),
		bookings: db.Collection(bookingsCollection),
		payments: db.Collection(paymentsCollection),
		users:    db.Collection(usersCollection),
		locks:    db.Collection(locksCollection),
	}
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// InProviderTransaction bumps the provider's lock document before running fn,
// so two transactions for the same provider write-conflict and one of them is
// retried by the driver after the other commits.
func (s *Store) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		_, err := s.locks.UpdateOne(sc,
			bson.M{"_id": providerID},
			bson.M{"$inc": bson.M{"version": 1}, "$set": bson.M{"touchedAt": time.Now().UTC()}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return nil, fmt.Errorf("lock provider: %w", err)
		}
		return nil, fn(sc, &mongoTx{s: s})
	}, txOpts)
	return err
}

func (s *Store) GetSlot(ctx context.Context, id uuid.UUID) (domain.AvailabilitySlot, error) {
	return (&mongoTx{s: s}).GetSlot(ctx, id)
}

func (s *Store) ListSlots(ctx context.Context, filter store.SlotFilter) ([]domain.AvailabilitySlot, error) {
	q := bson.M{}
	if filter.ProviderID != "" {
		q["providerId"] = filter.ProviderID
	}
	if filter.Status != "" {
		q["status"] = string(filter.Status)
	}
	if filter.Window != nil {
		q["startTime"] = bson.M{"$gte": ms(filter.Window.Start), "$lte": ms(filter.Window.End)}
	}

	cursor, err := s.slots.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "startTime", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []slotDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.AvailabilitySlot, 0, len(docs))
	for _, d := range docs {
		slot, err := d.domain()
		if err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	return out, nil
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return (&mongoTx{s: s}).GetBooking(ctx, id)
}

func (s *Store) ListBookings(ctx context.Context, filter store.BookingFilter) ([]domain.Booking, error) {
	q := bson.M{}
	if filter.ClientID != "" {
		q["clientId"] = filter.ClientID
	}
	if filter.ProviderID != "" {
		q["providerId"] = filter.ProviderID
	}
	if filter.Status != "" {
		q["status"] = string(filter.Status)
	}
	if filter.Window != nil {
		q["startTime"] = bson.M{"$gte": ms(filter.Window.Start), "$lte": ms(filter.Window.End)}
	}

	cursor, err := s.bookings.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "startTime", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bookingDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Booking, 0, len(docs))
	for _, d := range docs {
		b, err := d.domain()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	var d userDoc
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return domain.User{}, notFound(err)
	}
	return domain.User{ID: d.ID, Role: domain.Role(d.Role)}, nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	return err
}

type mongoTx struct {
	s *Store
}

func (t *mongoTx) InsertSlots(ctx context.Context, slots []domain.AvailabilitySlot) ([]domain.AvailabilitySlot, error) {
	if len(slots) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	out := make([]domain.AvailabilitySlot, 0, len(slots))
	docs := make([]interface{}, 0, len(slots))
	for _, slot := range slots {
		if slot.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return nil, err
			}
			slot.ID = id
		}
		slot.CreatedAt, slot.UpdatedAt = now, now
		d := toSlotDoc(slot)
		docs = append(docs, d)
		stored, err := d.domain()
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	if _, err := t.s.slots.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return out, nil
}

func (t *mongoTx) GetSlot(ctx context.Context, id uuid.UUID) (domain.AvailabilitySlot, error) {
	var d slotDoc
	if err := t.s.slots.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&d); err != nil {
		return domain.AvailabilitySlot{}, notFound(err)
	}
	return d.domain()
}

func (t *mongoTx) FindSlot(ctx context.Context, providerID string, r domain.TimeRange, status domain.SlotStatus) (domain.AvailabilitySlot, error) {
	q := bson.M{
		"providerId": providerID,
		"startTime":  ms(r.Start),
		"endTime":    ms(r.End),
		"status":     string(status),
	}
	var d slotDoc
	err := t.s.slots.FindOne(ctx, q, options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}})).Decode(&d)
	if err != nil {
		return domain.AvailabilitySlot{}, notFound(err)
	}
	return d.domain()
}

func (t *mongoTx) CompareAndSetSlotStatus(ctx context.Context, id uuid.UUID, from, to domain.SlotStatus) error {
	res, err := t.s.slots.UpdateOne(ctx,
		bson.M{"_id": id.String(), "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to), "updatedAt": ms(time.Now())}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrConflict
	}
	return nil
}

func (t *mongoTx) UpdateSlotRange(ctx context.Context, id uuid.UUID, r domain.TimeRange) error {
	res, err := t.s.slots.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"startTime": ms(r.Start), "endTime": ms(r.End), "updatedAt": ms(time.Now())}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *mongoTx) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	res, err := t.s.slots.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *mongoTx) InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	if b.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Booking{}, err
		}
		b.ID = id
	}
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	d := toBookingDoc(b)
	if _, err := t.s.bookings.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Booking{}, store.ErrConflict
		}
		return domain.Booking{}, err
	}
	return d.domain()
}

func (t *mongoTx) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	var d bookingDoc
	if err := t.s.bookings.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&d); err != nil {
		return domain.Booking{}, notFound(err)
	}
	return d.domain()
}

func (t *mongoTx) UpdateBooking(ctx context.Context, b domain.Booking) error {
	d := toBookingDoc(b)
	set := bson.M{
		"status":             d.Status,
		"active":             d.Active,
		"paymentStatus":      d.PaymentStatus,
		"notes":              d.Notes,
		"cancellationReason": d.CancellationReason,
		"updatedAt":          ms(time.Now()),
	}
	update := bson.M{"$set": set}
	if d.PaymentID != "" {
		set["paymentId"] = d.PaymentID
	} else {
		update["$unset"] = bson.M{"paymentId": ""}
	}

	res, err := t.s.bookings.UpdateOne(ctx, bson.M{"_id": d.ID}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrConflict
		}
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *mongoTx) HasActiveBooking(ctx context.Context, providerID string, r domain.TimeRange) (bool, error) {
	n, err := t.s.bookings.CountDocuments(ctx, bson.M{
		"providerId": providerID,
		"startTime":  ms(r.Start),
		"endTime":    ms(r.End),
		"active":     true,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *mongoTx) InsertPayment(ctx context.Context, p domain.Payment) (domain.Payment, error) {
	if p.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Payment{}, err
		}
		p.ID = id
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if _, err := t.s.payments.InsertOne(ctx, toPaymentDoc(p)); err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

var (
	_ store.Repository    = (*Store)(nil)
	_ store.UserDirectory = (*Store)(nil)
)
