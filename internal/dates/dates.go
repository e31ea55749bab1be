// Package dates picks the canonical date column of a table and parses the
// heterogeneous date strings found in uploaded datasets.
package dates

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoDateField is returned when none of the candidate names is a column of
// the dataset. Date-based aggregation cannot proceed without one.
var ErrNoDateField = errors.New("no date field found")

// ErrUnparsed marks a value that matched none of the configured formats.
var ErrUnparsed = errors.New("unparsed date")

// ParseError reports the value that could not be parsed.
type ParseError struct {
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot find matching date format for %q", e.Value)
}

// Is lets errors.Is(err, ErrUnparsed) match any ParseError.
func (e *ParseError) Is(target error) bool { return target == ErrUnparsed }

// DefaultCandidates lists date column names in priority order.
func DefaultCandidates() []string {
	return []string{"date", "timestamp", "timestamps", "Date"}
}

// DefaultFormats lists the accepted layouts in the order they are tried.
// Single-digit layout elements (1, 2, 15) also accept zero-padded input.
func DefaultFormats() []string {
	return []string{
		"1/2/2006 15:04:05",                // 1/10/2017 16:00:00
		"1/2/2006 15:04",                   // 1/10/2017 16:00
		"2006-1-2 15:04:05",                // 2023-01-25 10:30:00
		"2006-1-2 15:04",                   // 2023-01-25 10:30
		"2006-1-2T15:04:05",                // 2023-01-25T10:30:00
		"2006-1-2T15:04:05Z",               // 2023-01-25T10:30:00Z
		"2006-1-2",                         // 2023-01-25
		"1/2/2006",                         // 01/25/2023
		"2-1-2006",                         // 25-01-2023
		"Jan 2 2006 15:04:05",              // Jan 25 2023 10:30:00
		"2 Jan 2006 15:04:05",              // 25 Jan 2023 10:30:00
		"Monday, January 2, 2006 15:04:05", // Wednesday, January 25, 2023 10:30:00
	}
}

// Resolver holds the candidate column names and the ordered format list.
// The zero value is not useful; use Default or set both lists explicitly.
type Resolver struct {
	Candidates []string
	Formats    []string
}

// Default returns a resolver with the built-in candidates and formats.
func Default() Resolver {
	return Resolver{Candidates: DefaultCandidates(), Formats: DefaultFormats()}
}

// ResolveField returns the first candidate that is present in fields.
func (r Resolver) ResolveField(fields []string) (string, error) {
	present := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		present[f] = struct{}{}
	}
	for _, c := range r.Candidates {
		if _, ok := present[c]; ok {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w (looked for %s)", ErrNoDateField, strings.Join(r.Candidates, ", "))
}

// Parse tries every format in order and returns the first successful parse.
func (r Resolver) Parse(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v != "" {
		for _, layout := range r.Formats {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, &ParseError{Value: value}
}

// CanParse reports whether value matches any format.
func (r Resolver) CanParse(value string) bool {
	_, err := r.Parse(value)
	return err == nil
}

// YearsBetween returns the number of whole calendar years from start to end.
// Stepping a month clamps the day to the target month's length, so Feb 29
// plus one year lands on Feb 28.
func YearsBetween(start, end time.Time) int {
	if end.Before(start) {
		return -YearsBetween(end, start)
	}
	months := (end.Year()-start.Year())*12 + int(end.Month()-start.Month())
	if addMonths(start, months).After(end) {
		months--
	}
	return months / 12
}

// addMonths moves t by n months without spilling into the next month.
func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, n, 0)
	day := min(t.Day(), daysIn(first.Year(), first.Month()))
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, m time.Month) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
