package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ClockTime is a time of day as minutes after midnight.
type ClockTime int

const clockLayout = "15:04"

func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("time must be HH:MM: %w", err)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

func (c ClockTime) Valid() bool { return c >= 0 && c < 24*60 }

// String renders the 24-hour form, e.g. 18:30.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Display renders the 12-hour form used in log descriptions, e.g. 6:30 PM.
func (c ClockTime) Display() string {
	h, m := int(c)/60, int(c)%60
	ampm := "AM"
	if h >= 12 {
		ampm = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, m, ampm)
}

func (c ClockTime) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *ClockTime) UnmarshalText(b []byte) error {
	v, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// FeedSchedule is one daily feeding time. FeedNo is numbered per user.
type FeedSchedule struct {
	ID        int64     `json:"-"`
	UserID    uuid.UUID `json:"user_id"`
	FeedNo    int       `json:"id"`
	Label     string    `json:"label"`
	Time      ClockTime `json:"time"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WateringSchedule struct {
	UserID          uuid.UUID `json:"user_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	Liters          float64   `json:"liters"`
	DurationMinutes int       `json:"duration_minutes"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NightTime is when the coop switches to its night routine.
type NightTime struct {
	UserID    uuid.UUID `json:"user_id"`
	StartsAt  ClockTime `json:"starts_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
