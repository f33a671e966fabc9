// Package cron parses five-field cron expressions and computes their next
// activation. It drives the EMI batch schedule.
package cron

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidExpression is returned when an expression cannot be parsed.
var ErrInvalidExpression = errors.New("invalid cron expression")

// ErrNoMatch is returned when no activation exists within the search horizon.
var ErrNoMatch = errors.New("cron: no matching time within five years")

var descriptors = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
}

type bounds struct {
	name     string
	min, max int
}

var fieldBounds = [5]bounds{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// Schedule is a parsed expression. Each field is a bit set of allowed values.
type Schedule struct {
	minute, hour, dom, month, dow uint64
	// domStar and dowStar record unrestricted fields; when both day fields are
	// restricted a day matches if either does.
	domStar, dowStar bool
	loc              *time.Location
}

// Parse parses expr, evaluated in UTC.
func Parse(expr string) (*Schedule, error) {
	return ParseInLocation(expr, time.UTC)
}

// ParseInLocation parses expr, evaluated in loc.
func ParseInLocation(expr string, loc *time.Location) (*Schedule, error) {
	expr = strings.TrimSpace(expr)
	if d, ok := descriptors[strings.ToLower(expr)]; ok {
		expr = d
	}

	fields := strings.Fields(expr)
	if len(fields) != len(fieldBounds) {
		return nil, fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalidExpression, len(fields))
	}

	var sets [5]uint64

	for i, f := range fields {
		set, err := parseField(f, fieldBounds[i])
		if err != nil {
			return nil, fmt.Errorf("%s field: %w", fieldBounds[i].name, err)
		}

		sets[i] = set
	}

	if loc == nil {
		loc = time.UTC
	}

	return &Schedule{
		minute:  sets[0],
		hour:    sets[1],
		dom:     sets[2],
		month:   sets[3],
		dow:     sets[4],
		domStar: strings.HasPrefix(fields[2], "*"),
		dowStar: strings.HasPrefix(fields[4], "*"),
		loc:     loc,
	}, nil
}

func parseField(field string, b bounds) (uint64, error) {
	var set uint64

	for _, part := range strings.Split(field, ",") {
		lo, hi, step := b.min, b.max, 1

		rng, stepStr, hasStep := strings.Cut(part, "/")
		if hasStep {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("%w: bad step %q", ErrInvalidExpression, stepStr)
			}

			step = n
		}

		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			loStr, hiStr, _ := strings.Cut(rng, "-")

			var err error
			if lo, err = strconv.Atoi(loStr); err != nil {
				return 0, fmt.Errorf("%w: bad range %q", ErrInvalidExpression, rng)
			}

			if hi, err = strconv.Atoi(hiStr); err != nil {
				return 0, fmt.Errorf("%w: bad range %q", ErrInvalidExpression, rng)
			}
		default:
			n, err := strconv.Atoi(rng)
			if err != nil {
				return 0, fmt.Errorf("%w: bad value %q", ErrInvalidExpression, rng)
			}

			lo = n
			if !hasStep {
				hi = n
			}
		}

		if lo < b.min || hi > b.max || lo > hi {
			return 0, fmt.Errorf("%w: %q outside [%d, %d]", ErrInvalidExpression, part, b.min, b.max)
		}

		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}

	return set, nil
}

func has(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}

func (s *Schedule) dayMatches(t time.Time) bool {
	domOK := has(s.dom, t.Day())
	dowOK := has(s.dow, int(t.Weekday()))

	if s.domStar || s.dowStar {
		return domOK && dowOK
	}

	return domOK || dowOK
}

// Next returns the first activation strictly after from, in the schedule's location.
func (s *Schedule) Next(from time.Time) (time.Time, error) {
	t := from.In(s.loc).Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		switch {
		case !has(s.month, int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, s.loc)
		case !s.dayMatches(t):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, s.loc)
		case !has(s.hour, t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, s.loc)
		case !has(s.minute, t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t, nil
		}
	}

	return time.Time{}, ErrNoMatch
}

// Activations reports how many distinct minutes per hour the schedule fires on.
func (s *Schedule) Activations() int {
	return bits.OnesCount64(s.minute)
}
