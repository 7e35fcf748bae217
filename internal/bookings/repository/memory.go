package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	bookingserrors "roomres/internal/bookings/errors"
	"roomres/pkg/model"

	"github.com/google/uuid"
)

// memoryBookingRepository keeps bookings in process memory. Stored values are
// never handed out; callers always receive copies.
type memoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*model.Booking

	guardsMu sync.Mutex
	guards   map[string]*slotGuard
}

// slotGuard is dropped from the map once nobody holds or waits for it.
type slotGuard struct {
	ch   chan struct{}
	refs int
}

func NewMemoryBookingRepository() BookingRepository {
	return &memoryBookingRepository{
		bookings: make(map[string]*model.Booking),
		guards:   make(map[string]*slotGuard),
	}
}

func (r *memoryBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now().UTC()
	booking.ID = uuid.NewString()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	r.mu.Lock()
	r.bookings[booking.ID] = cloneBooking(booking)
	r.mu.Unlock()
	return nil
}

func (r *memoryBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := parseUUID(id); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	return cloneBooking(b), nil
}

func (r *memoryBookingRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	all, err := r.filter(ctx, func(*model.Booking) bool { return true })
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.RoomID != b.RoomID {
			return a.RoomID < b.RoomID
		}
		return a.StartTime < b.StartTime
	})

	if offset >= int64(len(all)) {
		return []*model.Booking{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *memoryBookingRepository) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.bookings)), nil
}

func (r *memoryBookingRepository) FindByUsername(ctx context.Context, username string) ([]*model.Booking, error) {
	found, err := r.filter(ctx, func(b *model.Booking) bool { return b.Username == username })
	if err != nil {
		return nil, err
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].Date != found[j].Date {
			return found[i].Date < found[j].Date
		}
		return found[i].StartTime < found[j].StartTime
	})
	return found, nil
}

func (r *memoryBookingRepository) FindByRoomAndDate(ctx context.Context, roomID int64, date model.Date, excludeID string) ([]*model.Booking, error) {
	found, err := r.filter(ctx, func(b *model.Booking) bool {
		return b.RoomID == roomID && b.Date == date && (excludeID == "" || b.ID != excludeID)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(found, func(i, j int) bool { return found[i].StartTime < found[j].StartTime })
	return found, nil
}

func (r *memoryBookingRepository) filter(ctx context.Context, keep func(*model.Booking) bool) ([]*model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Booking, 0)
	for _, b := range r.bookings {
		if keep(b) {
			out = append(out, cloneBooking(b))
		}
	}
	return out, nil
}

func (r *memoryBookingRepository) Update(ctx context.Context, booking *model.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := parseUUID(booking.ID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.bookings[booking.ID]
	if !ok {
		return bookingserrors.ErrNotFound
	}
	stored.RoomID = booking.RoomID
	stored.Date = booking.Date
	stored.StartTime = booking.StartTime
	stored.EndTime = booking.EndTime
	stored.UpdatedAt = time.Now().UTC()
	booking.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *memoryBookingRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := parseUUID(id); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[id]; !ok {
		return bookingserrors.ErrNotFound
	}
	delete(r.bookings, id)
	return nil
}

// WithSlotGuard serializes fn per key. Waiting for the guard honors ctx.
func (r *memoryBookingRepository) WithSlotGuard(ctx context.Context, key model.SlotKey, fn SlotFunc) error {
	guard := r.acquireRef(key.String())
	defer r.releaseRef(key.String(), guard)

	select {
	case guard.ch <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("failed to acquire slot guard %s: %w", key, ctx.Err())
	}
	defer func() { <-guard.ch }()

	return fn(ctx)
}

func (r *memoryBookingRepository) acquireRef(key string) *slotGuard {
	r.guardsMu.Lock()
	defer r.guardsMu.Unlock()

	g, ok := r.guards[key]
	if !ok {
		g = &slotGuard{ch: make(chan struct{}, 1)}
		r.guards[key] = g
	}
	g.refs++
	return g
}

func (r *memoryBookingRepository) releaseRef(key string, g *slotGuard) {
	r.guardsMu.Lock()
	defer r.guardsMu.Unlock()

	g.refs--
	if g.refs == 0 {
		delete(r.guards, key)
	}
}

func (r *memoryBookingRepository) guardCount() int {
	r.guardsMu.Lock()
	defer r.guardsMu.Unlock()
	return len(r.guards)
}

func (r *memoryBookingRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}
