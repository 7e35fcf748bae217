package repository

import (
	"context"
	"time"

	"roomres/pkg/model"
)

// SlotFunc runs inside a slot guard. Repository calls made with the ctx it
// receives take part in the guarded unit of work.
type SlotFunc func(ctx context.Context) error

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error)
	Count(ctx context.Context) (int64, error)
	FindByUsername(ctx context.Context, username string) ([]*model.Booking, error)
	// FindByRoomAndDate returns every booking of roomID on date except the
	// one with excludeID. An empty excludeID excludes nothing.
	FindByRoomAndDate(ctx context.Context, roomID int64, date model.Date, excludeID string) ([]*model.Booking, error)
	// Update persists the room, date and interval of an existing booking.
	Update(ctx context.Context, booking *model.Booking) error
	Delete(ctx context.Context, id string) error
	// WithSlotGuard runs fn so that no other guarded fn for the same key can
	// interleave with it. A conflict scan followed by a write inside fn is
	// therefore atomic with respect to every other writer on that key.
	WithSlotGuard(ctx context.Context, key model.SlotKey, fn SlotFunc) error
	Ping(ctx context.Context) error
}

const (
	defaultReadTimeout  = 5 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// withTimeout bounds ctx by timeout unless it already has an earlier
// deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func cloneBooking(b *model.Booking) *model.Booking {
	c := *b
	return &c
}
