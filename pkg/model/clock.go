package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"

	secondsPerDay = 24 * 60 * 60

	// EndOfDay is 24:00, usable only as the end of an interval.
	EndOfDay TimeOfDay = secondsPerDay
)

// Date is a naive calendar date in YYYY-MM-DD form. No time zone is attached
// and none is inferred.
type Date string

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Date(t.Format(DateLayout)), nil
}

func (d Date) String() string {
	return string(d)
}

func (d Date) IsZero() bool {
	return d == ""
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is a naive wall-clock time stored as seconds after midnight.
type TimeOfDay int

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" || s == "24:00:00" {
		return EndOfDay, nil
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second()), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q: expected HH:MM or HH:MM:SS", s)
}

func MustTime(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Valid accepts 00:00 through 24:00. Interval.Valid keeps 24:00 out of the
// start position.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= EndOfDay
}

func (t TimeOfDay) String() string {
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time must be a string: %w", err)
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Interval is a half-open [Start, End) range on a single date.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

func (i Interval) Valid() bool {
	return i.Start.Valid() && i.End.Valid() && i.Start < i.End
}

// Overlaps reports whether the two intervals share at least one instant.
// Touching endpoints do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.End && other.Start < i.End
}

func (i Interval) String() string {
	return i.Start.String() + "-" + i.End.String()
}
