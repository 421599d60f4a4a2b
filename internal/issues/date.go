// Package issues normalizes raw GitHub issues and aggregates them by month.
package issues

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// Date is a calendar date with no time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the UTC calendar date of a timestamp.
func DateOf(ts time.Time) Date {
	year, month, day := ts.UTC().Date()
	return Date{Year: year, Month: month, Day: day}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(raw string) (Date, error) {
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return DateOf(parsed), nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format(dateLayout)
}

// MonthOf returns the calendar month containing the date.
func (d Date) MonthOf() Month {
	return Month{Year: d.Year, Month: d.Month}
}

// MarshalJSON encodes the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes "YYYY-MM-DD".
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Month is a calendar year-month.
type Month struct {
	Year  int
	Month time.Month
}

// String formats the month as YYYY-MM.
func (m Month) String() string {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).Format(monthLayout)
}

// Before reports whether m is an earlier month than other.
func (m Month) Before(other Month) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

// MonthBucket is the number of issues falling in one month.
type MonthBucket struct {
	Month Month
	Count int
}

// MarshalJSON encodes the bucket as a ["YYYY-MM", count] pair.
func (b MonthBucket) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{b.Month.String(), b.Count})
}

// UnmarshalJSON decodes a ["YYYY-MM", count] pair.
func (b *MonthBucket) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("month bucket must have 2 elements, got %d", len(pair))
	}

	var rawMonth string
	if err := json.Unmarshal(pair[0], &rawMonth); err != nil {
		return fmt.Errorf("decode bucket month: %w", err)
	}
	parsed, err := time.Parse(monthLayout, rawMonth)
	if err != nil {
		return fmt.Errorf("parse bucket month %q: %w", rawMonth, err)
	}
	var count int
	if err := json.Unmarshal(pair[1], &count); err != nil {
		return fmt.Errorf("decode bucket count: %w", err)
	}

	b.Month = Month{Year: parsed.Year(), Month: parsed.Month()}
	b.Count = count
	return nil
}
