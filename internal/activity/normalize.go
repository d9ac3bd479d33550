package activity

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Epoch is the instant used when a record's timestamp cannot be resolved.
var Epoch = time.Unix(0, 0).UTC()

type asTimer interface {
	AsTime() time.Time
}

type toDater interface {
	ToDate() time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// NormalizeTime resolves a heterogeneous timestamp value to an instant.
// The second result is false when the value fell back to Epoch.
func NormalizeTime(v any) (t time.Time, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			t, ok = Epoch, false
		}
	}()

	switch x := v.(type) {
	case nil:
		return Epoch, false
	case asTimer:
		return checked(x.AsTime())
	case toDater:
		return checked(x.ToDate())
	case map[string]any:
		return fromSecondsMap(x)
	case string:
		return parseTimeString(x)
	case time.Time:
		return checked(x)
	case *time.Time:
		if x == nil {
			return Epoch, false
		}
		return checked(*x)
	case int64:
		return checked(time.UnixMilli(x))
	case int:
		return checked(time.UnixMilli(int64(x)))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Epoch, false
		}
		return checked(time.UnixMilli(int64(x)))
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return Epoch, false
		}
		return checked(time.UnixMilli(n))
	}
	return Epoch, false
}

func checked(t time.Time) (time.Time, bool) {
	if t.IsZero() || t.Year() < 1 || t.Year() > 9999 {
		return Epoch, false
	}
	return t.UTC(), true
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Epoch, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return checked(t)
		}
	}
	return Epoch, false
}

// fromSecondsMap handles the JSON form of a document-store timestamp:
// {"seconds": ..., "nanoseconds": ...} or {"_seconds": ..., "_nanoseconds": ...}.
func fromSecondsMap(m map[string]any) (time.Time, bool) {
	sec, ok := number(m["seconds"])
	if !ok {
		sec, ok = number(m["_seconds"])
	}
	if !ok {
		return Epoch, false
	}
	nsec, nok := number(m["nanoseconds"])
	if !nok {
		nsec, _ = number(m["_nanoseconds"])
	}
	return checked(time.Unix(int64(sec), int64(nsec)))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
