package issues

import (
	"fmt"
	"sort"
)

// Dimension selects which date of a record is grouped or forecast.
type Dimension string

const (
	// Created keys on the creation date.
	Created Dimension = "created"
	// Closed keys on the closing date.
	Closed Dimension = "closed"
)

// Field returns the record field name used by the forecasting service.
func (d Dimension) Field() string {
	return string(d) + "_at"
}

// Validate rejects unknown dimensions.
func (d Dimension) Validate() error {
	switch d {
	case Created, Closed:
		return nil
	default:
		return fmt.Errorf("unknown dimension %q", string(d))
	}
}

func (d Dimension) dateOf(record Record) *Date {
	switch d {
	case Created:
		return record.CreatedAt
	case Closed:
		return record.ClosedAt
	default:
		return nil
	}
}

// Aggregate counts records per calendar month of the chosen date. Records
// without that date are ignored, and an unknown dimension matches nothing.
// Buckets are strictly ascending by month and only months with at least one
// record appear.
func Aggregate(records []Record, dimension Dimension) []MonthBucket {
	counts := make(map[Month]int)
	for _, record := range records {
		day := dimension.dateOf(record)
		if day == nil {
			continue
		}
		counts[day.MonthOf()]++
	}

	buckets := make([]MonthBucket, 0, len(counts))
	for month, count := range counts {
		buckets = append(buckets, MonthBucket{Month: month, Count: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Month.Before(buckets[j].Month)
	})
	return buckets
}
