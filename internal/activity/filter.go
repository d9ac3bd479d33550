package activity

import (
	"strings"
	"time"

	"github.com/tsiken/backend/internal/apperr"
	"github.com/tsiken/backend/internal/models"
)

const DateLayout = "2006-01-02"

var ErrInvalidDateRange = apperr.Field("date_range", "Start date must be on or before end date.")

// Filter selects entries by actor name and an inclusive day range. Zero
// values disable the corresponding predicate.
type Filter struct {
	Name     string         `json:"name,omitempty"`
	Start    *time.Time     `json:"start,omitempty"`
	End      *time.Time     `json:"end,omitempty"`
	Location *time.Location `json:"-"`
}

func (f Filter) loc() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

func (f Filter) Validate() error {
	if f.Start != nil && f.End != nil && StartOfDay(*f.Start, f.loc()).After(EndOfDay(*f.End, f.loc())) {
		return ErrInvalidDateRange
	}
	return nil
}

func (f Filter) IsZero() bool {
	return strings.TrimSpace(f.Name) == "" && f.Start == nil && f.End == nil
}

// Match applies all predicates conjunctively.
func (f Filter) Match(e models.LogEntry) bool {
	if name := strings.TrimSpace(f.Name); name != "" {
		if !strings.Contains(strings.ToLower(e.ActorDisplayName), strings.ToLower(name)) {
			return false
		}
	}
	if f.Start != nil && e.OccurredAt.Before(StartOfDay(*f.Start, f.loc())) {
		return false
	}
	if f.End != nil && e.OccurredAt.After(EndOfDay(*f.End, f.loc())) {
		return false
	}
	return true
}

func (f Filter) Apply(entries []models.LogEntry) []models.LogEntry {
	if f.IsZero() {
		return entries
	}
	out := make([]models.LogEntry, 0, len(entries))
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// ParseDay parses a YYYY-MM-DD value in loc. Empty input yields nil.
func ParseDay(s string, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return nil, &apperr.Error{
			Kind:    apperr.KindValidation,
			Message: "Dates must use the YYYY-MM-DD format.",
			Fields:  map[string]string{"date": "Dates must use the YYYY-MM-DD format."},
			Err:     err,
		}
	}
	return &t, nil
}
