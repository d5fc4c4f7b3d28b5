package snapshot

import (
	"fmt"
	"time"

	"londoncinemas/internal/cinema"
	"londoncinemas/lib/timezone"
)

// Query filters screenings, empty fields match everything.
type Query struct {
	CinemaID string
	// Date is a London civil date formatted YYYY-MM-DD.
	Date string
}

func (q Query) Validate() error {
	if q.Date == "" {
		return nil
	}
	_, err := time.Parse(time.DateOnly, q.Date)
	if err != nil {
		return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", q.Date)
	}
	return nil
}

func (q Query) Matches(s cinema.Screening) bool {
	if q.CinemaID != "" && s.CinemaID != q.CinemaID {
		return false
	}
	if q.Date != "" && timezone.Date(s.StartTime) != q.Date {
		return false
	}
	return true
}

// Filter returns the screenings matching `q`, in their original order.
func Filter(screenings []cinema.Screening, q Query) []cinema.Screening {
	out := []cinema.Screening{}
	for _, s := range screenings {
		if q.Matches(s) {
			out = append(out, s)
		}
	}
	return out
}
