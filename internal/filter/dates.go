package filter

import (
	"fmt"
	"strconv"
	"time"
)

// Range is a time interval produced by a date operator. Nil bounds are open.
// From is inclusive unless FromStrict is set; To is always exclusive.
type Range struct {
	From       *time.Time
	FromStrict bool
	To         *time.Time
}

// IsDateOperator reports whether op is resolved through DateRange.
func IsDateOperator(op string) bool {
	switch op {
	case "before", "after", "today", "yesterday", "past", "future", "previous_x_days":
		return true
	}
	return false
}

// LoadLocation resolves an IANA timezone name; empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrMalformed, name)
	}
	return loc, nil
}

// DateRange computes the interval a date operator selects, relative to now in loc.
func DateRange(op string, value any, loc *time.Location, now time.Time) (Range, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch op {
	case "today":
		end := startOfDay.AddDate(0, 0, 1)
		return Range{From: &startOfDay, To: &end}, nil
	case "yesterday":
		start := startOfDay.AddDate(0, 0, -1)
		return Range{From: &start, To: &startOfDay}, nil
	case "previous_x_days":
		days, err := toInt(value)
		if err != nil || days < 0 {
			return Range{}, fmt.Errorf("%w: previous_x_days expects a positive number, got %v", ErrMalformed, value)
		}
		start := startOfDay.AddDate(0, 0, -days)
		return Range{From: &start, To: &startOfDay}, nil
	case "past":
		return Range{To: &now}, nil
	case "future":
		return Range{From: &now, FromStrict: true}, nil
	case "before":
		t, err := parseTime(value, loc)
		if err != nil {
			return Range{}, err
		}
		return Range{To: &t}, nil
	case "after":
		t, err := parseTime(value, loc)
		if err != nil {
			return Range{}, err
		}
		return Range{From: &t, FromStrict: true}, nil
	}
	return Range{}, fmt.Errorf("%w: %q is not a date operator", ErrMalformed, op)
}

func parseTime(v any, loc *time.Location) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: expected a date string, got %T", ErrMalformed, v)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrMalformed, s)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("not a number: %v", v)
}
