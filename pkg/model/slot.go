package model

import "fmt"

// SlotKey is the unit of atomicity for conflict checks: every booking on the
// same room and date is checked and committed under the same key.
type SlotKey struct {
	RoomID int64
	Date   Date
}

func (k SlotKey) String() string {
	return fmt.Sprintf("room:%d:%s", k.RoomID, k.Date)
}
