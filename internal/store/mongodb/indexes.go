package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the lookup indexes and the unique index that keeps a
// provider range to one active booking.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	slotIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "providerId", Value: 1},
				{Key: "startTime", Value: 1},
				{Key: "endTime", Value: 1},
				{Key: "status", Value: 1},
			},
			Options: options.Index().SetName("provider_exact_range_status_idx"),
		},
	}
	if _, err := s.slots.Indexes().CreateMany(ctx, slotIndexes); err != nil {
		return fmt.Errorf("create slot indexes: %w", err)
	}

	bookingIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "providerId", Value: 1},
				{Key: "startTime", Value: 1},
				{Key: "endTime", Value: 1},
			},
			Options: options.Index().
				SetName("bookings_active_range").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{
			Keys:    bson.D{{Key: "clientId", Value: 1}, {Key: "startTime", Value: 1}},
			Options: options.Index().SetName("client_start_idx"),
		},
		{
			Keys:    bson.D{{Key: "providerId", Value: 1}, {Key: "startTime", Value: 1}},
			Options: options.Index().SetName("provider_start_idx"),
		},
	}
	if _, err := s.bookings.Indexes().CreateMany(ctx, bookingIndexes); err != nil {
		return fmt.Errorf("create booking indexes: %w", err)
	}

	paymentIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "bookingId", Value: 1}},
			Options: options.Index().SetName("booking_idx"),
		},
	}
	if _, err := s.payments.Indexes().CreateMany(ctx, paymentIndexes); err != nil {
		return fmt.Errorf("create payment indexes: %w", err)
	}
	return nil
}
