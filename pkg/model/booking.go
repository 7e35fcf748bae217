package model

import (
	"time"
)

type Booking struct {
	ID        string    `json:"id,omitempty" bson:"_id,omitempty"`
	Username  string    `json:"username" bson:"username"`
	RoomID    int64     `json:"room_id" bson:"room_id"`
	Date      Date      `json:"date" bson:"date"`
	StartTime TimeOfDay `json:"start_time" bson:"start_time"`
	EndTime   TimeOfDay `json:"end_time" bson:"end_time"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func (b *Booking) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

func (b *Booking) SlotKey() SlotKey {
	return SlotKey{RoomID: b.RoomID, Date: b.Date}
}

// BookingUpdate carries the optional fields of a partial update. Nil fields
// keep the current value.
type BookingUpdate struct {
	Date      *Date      `json:"date,omitempty"`
	StartTime *TimeOfDay `json:"start_time,omitempty"`
	EndTime   *TimeOfDay `json:"end_time,omitempty"`
}

func (u *BookingUpdate) IsEmpty() bool {
	return u == nil || (u.Date == nil && u.StartTime == nil && u.EndTime == nil)
}

// Apply returns a copy of existing with the supplied fields merged in.
func (u *BookingUpdate) Apply(existing *Booking) *Booking {
	merged := *existing
	if u == nil {
		return &merged
	}
	if u.Date != nil {
		merged.Date = *u.Date
	}
	if u.StartTime != nil {
		merged.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		merged.EndTime = *u.EndTime
	}
	return &merged
}

// AvailabilityQuery asks whether a room is free for an interval on a date.
type AvailabilityQuery struct {
	RoomID    int64     `json:"room_id"`
	Date      Date      `json:"date"`
	StartTime TimeOfDay `json:"start_time"`
	EndTime   TimeOfDay `json:"end_time"`
}

func (q AvailabilityQuery) Interval() Interval {
	return Interval{Start: q.StartTime, End: q.EndTime}
}
