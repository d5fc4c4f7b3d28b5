package timezone

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/London")
	if err != nil {
		panic(err)
	}
}

// ToLondon converts an aware time into London time.
func ToLondon(t time.Time) time.Time {
	return t.In(Location)
}

// Naive interprets a wall clock reading as London local time.
func Naive(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, Location)
}

// StartOfDay returns London midnight of the civil date `t` falls on.
func StartOfDay(t time.Time) time.Time {
	t = t.In(Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Location)
}

// Date formats the London civil date of `t` as YYYY-MM-DD.
func Date(t time.Time) string {
	return t.In(Location).Format(time.DateOnly)
}

var awareLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04-07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Parse parses an ISO-8601 timestamp. Timestamps carrying an offset are
// converted to London, timestamps without one are read as London wall clock.
func Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range awareLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.In(Location), nil
		}
	}
	return ParseNaive(value)
}

// ParseNaive parses an ISO-8601 timestamp as London wall clock, discarding
// any trailing "Z" designator.
func ParseNaive(value string) (time.Time, error) {
	value = strings.TrimSuffix(strings.TrimSpace(value), "Z")
	for _, layout := range naiveLayouts {
		t, err := time.ParseInLocation(layout, value, Location)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
