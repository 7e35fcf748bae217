package conflict

import (
	"context"
	"errors"
	"fmt"

	"roomres/pkg/model"
)

var ErrInvalidInterval = errors.New("interval start must be before its end")

// Finder is the read side of a booking store the engine scans.
type Finder interface {
	FindByRoomAndDate(ctx context.Context, roomID int64, date model.Date, excludeID string) ([]*model.Booking, error)
}

// Query describes a candidate booking. ExcludeID names a booking to ignore,
// normally the one being updated.
type Query struct {
	RoomID    int64
	Date      model.Date
	Interval  model.Interval
	ExcludeID string
}

func (q Query) SlotKey() model.SlotKey {
	return model.SlotKey{RoomID: q.RoomID, Date: q.Date}
}

// Overlaps is the overlap predicate for half-open intervals. Back-to-back
// bookings share an endpoint and do not overlap.
func Overlaps(a, b model.Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// Engine answers whether a candidate booking collides with an existing one.
// It never writes; atomicity with the following commit is the caller's job.
type Engine struct {
	finder Finder
}

func NewEngine(finder Finder) *Engine {
	return &Engine{finder: finder}
}

// FindConflict returns the first existing booking that overlaps q, or nil.
func (e *Engine) FindConflict(ctx context.Context, q Query) (*model.Booking, error) {
	if !q.Interval.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, q.Interval)
	}

	existing, err := e.finder.FindByRoomAndDate(ctx, q.RoomID, q.Date, q.ExcludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan bookings for %s: %w", q.SlotKey(), err)
	}

	for _, b := range existing {
		if q.ExcludeID != "" && b.ID == q.ExcludeID {
			continue
		}
		if Overlaps(q.Interval, b.Interval()) {
			return b, nil
		}
	}
	return nil, nil
}

func (e *Engine) HasConflict(ctx context.Context, q Query) (bool, error) {
	hit, err := e.FindConflict(ctx, q)
	if err != nil {
		return false, err
	}
	return hit != nil, nil
}
