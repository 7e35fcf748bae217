package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "roomres/internal/bookings/errors"
	"roomres/pkg/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TableName = "bookings"

	pgExclusionViolation = "23P01"
	pgCheckViolation     = "23514"

	bookingColumns = `id::text, username, room_id, date::text,
		EXTRACT(EPOCH FROM start_time)::int, EXTRACT(EPOCH FROM end_time)::int,
		created_at, updated_at`
)

// querier is the subset shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

type postgresBookingRepository struct {
	pool         *pgxpool.Pool
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewPostgresBookingRepository(pool *pgxpool.Pool, readTimeout, writeTimeout time.Duration) BookingRepository {
	return &postgresBookingRepository{
		pool:         pool,
		readTimeout:  orDefault(readTimeout, defaultReadTimeout),
		writeTimeout: orDefault(writeTimeout, defaultWriteTimeout),
	}
}

// db returns the transaction bound to ctx by WithSlotGuard, or the pool.
func (r *postgresBookingRepository) db(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.pool
}

func parseUUID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}
	return parsed, nil
}

// mapPgError translates constraint violations raised by the bookings table
// into repository errors.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgExclusionViolation:
		return fmt.Errorf("%w: %s", bookingserrors.ErrTimeConflict, pgErr.ConstraintName)
	case pgCheckViolation:
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidTimeRange, pgErr.ConstraintName)
	}
	return err
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var (
		b          model.Booking
		date       string
		start, end int
	)
	if err := row.Scan(&b.ID, &b.Username, &b.RoomID, &date, &start, &end, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Date = model.Date(date)
	b.StartTime = model.TimeOfDay(start)
	b.EndTime = model.TimeOfDay(end)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

func (r *postgresBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.writeTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)
	id := uuid.New()

	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO bookings (id, username, room_id, date, start_time, end_time, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4::text::date, $5::text::time, $6::text::time, $7, $7)`,
		id.String(), booking.Username, booking.RoomID, string(booking.Date),
		booking.StartTime.String(), booking.EndTime.String(), now)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", mapPgError(err))
	}

	booking.ID = id.String()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	return nil
}

func (r *postgresBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	parsed, err := parseUUID(id)
	if err != nil {
		return nil, err
	}

	row := r.db(ctx).QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1::uuid`, parsed.String())
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return booking, nil
}

func (r *postgresBookingRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	return r.query(ctx, `SELECT `+bookingColumns+` FROM bookings
		ORDER BY date, room_id, start_time LIMIT $1 OFFSET $2`, limit, offset)
}

func (r *postgresBookingRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	var count int64
	if err := r.db(ctx).QueryRow(ctx, `SELECT count(*) FROM bookings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (r *postgresBookingRepository) FindByUsername(ctx context.Context, username string) ([]*model.Booking, error) {
	return r.query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE username = $1 ORDER BY date, start_time`, username)
}

func (r *postgresBookingRepository) FindByRoomAndDate(ctx context.Context, roomID int64, date model.Date, excludeID string) ([]*model.Booking, error) {
	return r.query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE room_id = $1 AND date = $2::text::date AND ($3::text = '' OR id::text <> $3::text)
		ORDER BY start_time`, roomID, string(date), excludeID)
}

func (r *postgresBookingRepository) query(ctx context.Context, sql string, args ...any) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	rows, err := r.db(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]*model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to decode bookings: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bookings: %w", err)
	}
	return bookings, nil
}

func (r *postgresBookingRepository) Update(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.writeTimeout)
	defer cancel()

	parsed, err := parseUUID(booking.ID)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE bookings
		SET room_id = $2, date = $3::text::date, start_time = $4::text::time, end_time = $5::text::time, updated_at = $6
		WHERE id = $1::uuid`,
		parsed.String(), booking.RoomID, string(booking.Date),
		booking.StartTime.String(), booking.EndTime.String(), now)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return bookingserrors.ErrNotFound
	}
	booking.UpdatedAt = now
	return nil
}

func (r *postgresBookingRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, r.writeTimeout)
	defer cancel()

	parsed, err := parseUUID(id)
	if err != nil {
		return err
	}

	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM bookings WHERE id = $1::uuid`, parsed.String())
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return bookingserrors.ErrNotFound
	}
	return nil
}

// WithSlotGuard runs fn in a transaction holding a transaction-scoped
// advisory lock on key. The lock is released on commit or rollback.
func (r *postgresBookingRepository) WithSlotGuard(ctx context.Context, key model.SlotKey, fn SlotFunc) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
			return fmt.Errorf("failed to acquire slot guard %s: %w", key, err)
		}
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (r *postgresBookingRepository) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()
	return r.pool.Ping(ctx)
}
