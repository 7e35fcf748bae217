package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "roomres/internal/bookings/errors"
	"roomres/pkg/config"
	mongotx "roomres/pkg/db/mongo"
	"roomres/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	CollectionName           = "Bookings"
	SlotGuardsCollectionName = "Slot_guards"

	// Concurrent first writers on a fresh slot can race on the guard upsert
	// and surface a duplicate key instead of a write conflict.
	maxGuardAttempts = 3
)

type mongoBookingRepository struct {
	db           *mongo.Database
	collection   *mongo.Collection
	guards       *mongo.Collection
	txManager    mongotx.TransactionManager
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		db:           db,
		collection:   db.Collection(CollectionName),
		guards:       db.Collection(SlotGuardsCollectionName),
		txManager:    mongotx.NewTransactionManager(cfg.Client.Mongo),
		readTimeout:  orDefault(cfg.ReadTimeout, defaultReadTimeout),
		writeTimeout: orDefault(cfg.WriteTimeout, defaultWriteTimeout),
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// Inside a transaction the SessionContext is returned unchanged; the
// transaction itself is bounded by the caller's context.
func (r *mongoBookingRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return withTimeout(ctx, timeout)
}

func parseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}
	return oid, nil
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.writeTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	booking.ID = ""
	booking.CreatedAt = now
	booking.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, booking)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		booking.ID = oid.Hex()
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.readTimeout)
	defer cancel()

	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	var booking model.Booking
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "room_id", Value: 1}, {Key: "start_time", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	return r.find(ctx, bson.M{}, opts)
}

func (r *mongoBookingRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.readTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (r *mongoBookingRepository) FindByUsername(ctx context.Context, username string) ([]*model.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "start_time", Value: 1}})
	return r.find(ctx, bson.M{"username": username}, opts)
}

func (r *mongoBookingRepository) FindByRoomAndDate(ctx context.Context, roomID int64, date model.Date, excludeID string) ([]*model.Booking, error) {
	filter := bson.M{"room_id": roomID, "date": date}
	if excludeID != "" {
		if oid, err := primitive.ObjectIDFromHex(excludeID); err == nil {
			filter["_id"] = bson.M{"$ne": oid}
		}
	}
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *mongoBookingRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.readTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := make([]*model.Booking, 0)
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) Update(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.writeTimeout)
	defer cancel()

	objectID, err := parseObjectID(booking.ID)
	if err != nil {
		return err
	}

	booking.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"room_id":    booking.RoomID,
			"date":       booking.Date,
			"start_time": booking.StartTime,
			"end_time":   booking.EndTime,
			"updated_at": booking.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if result.MatchedCount == 0 {
		return bookingserrors.ErrNotFound
	}
	return nil
}

func (r *mongoBookingRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.writeTimeout)
	defer cancel()

	objectID, err := parseObjectID(id)
	if err != nil {
		return err
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if result.DeletedCount == 0 {
		return bookingserrors.ErrNotFound
	}
	return nil
}

// WithSlotGuard runs fn in a transaction that first bumps the guard document
// of key. Two transactions on the same key write the same document, so the
// later one hits a write conflict and the driver reruns it after the earlier
// one commits. The rerun sees the committed booking.
func (r *mongoBookingRepository) WithSlotGuard(ctx context.Context, key model.SlotKey, fn SlotFunc) error {
	var err error
	for attempt := 1; attempt <= maxGuardAttempts; attempt++ {
		err = r.txManager.ExecuteTransaction(ctx, func(sc mongo.SessionContext) error {
			if err := r.touchGuard(sc, key); err != nil {
				return err
			}
			return fn(sc)
		})
		if err == nil || !mongo.IsDuplicateKeyError(err) {
			return err
		}
	}
	return err
}

func (r *mongoBookingRepository) touchGuard(ctx context.Context, key model.SlotKey) error {
	update := bson.M{
		"$inc": bson.M{"version": 1},
		"$set": bson.M{
			"room_id":    key.RoomID,
			"date":       key.Date,
			"updated_at": time.Now().UTC(),
		},
	}
	_, err := r.guards.UpdateOne(ctx, bson.M{"_id": key.String()}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to acquire slot guard %s: %w", key, err)
	}
	return nil
}

func (r *mongoBookingRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx, r.readTimeout)
	defer cancel()
	return r.db.Client().Ping(ctx, readpref.Primary())
}
