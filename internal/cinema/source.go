package cinema

import (
	"context"
	"sort"
	"strings"
	"time"

	"londoncinemas/lib/timezone"
)

// Source is implemented by every venue adapter.
type Source interface {
	// Cinema returns the venue this source scrapes.
	Cinema() Cinema
	// Scrape returns the screenings within the next `daysAhead` days. Items
	// that fail to parse are skipped, an error is only returned when nothing
	// could be obtained from the venue at all.
	Scrape(ctx context.Context, daysAhead int) ([]Screening, error)
	// Films returns the distinct films currently or soon showing.
	Films(ctx context.Context) ([]Film, error)
}

// DefaultDaysAhead is the scrape window used when none is given.
const DefaultDaysAhead = 14

// Window is the half-open range of instants [Start, End) a scrape covers.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns the window starting at London midnight of `now` and
// spanning `daysAhead` days, a non-positive `daysAhead` uses DefaultDaysAhead.
func NewWindow(now time.Time, daysAhead int) Window {
	if daysAhead <= 0 {
		daysAhead = DefaultDaysAhead
	}
	start := timezone.StartOfDay(now)
	return Window{
		Start: start,
		End:   start.AddDate(0, 0, daysAhead),
	}
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Dates returns the London civil dates covered by the window in order.
func (w Window) Dates() []time.Time {
	out := []time.Time{}
	for d := w.Start; d.Before(w.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// Dedupe keeps the first screening seen for each key, preserving order.
// Screenings whose key is empty are always kept.
func Dedupe(screenings []Screening, key func(Screening) string) []Screening {
	seen := map[string]struct{}{}
	out := make([]Screening, 0, len(screenings))
	for _, s := range screenings {
		k := key(s)
		if k != "" {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
		}
		out = append(out, s)
	}
	return out
}

// DedupeByID removes screenings that share a content hash.
func DedupeByID(screenings []Screening) []Screening {
	return Dedupe(screenings, Screening.ID)
}

// SortByStart sorts screenings ascending by start time, ties keep their order.
func SortByStart(screenings []Screening) {
	sort.SliceStable(screenings, func(i, j int) bool {
		return screenings[i].StartTime.Before(screenings[j].StartTime)
	})
}

// Finalize is applied to an adapter's output before it is returned:
// invariants are enforced, screenings outside `window` are dropped and
// content-hash duplicates removed.
func Finalize(c Cinema, window Window, screenings []Screening) []Screening {
	out := make([]Screening, 0, len(screenings))
	for _, s := range screenings {
		s = s.Normalize(c)
		if !window.Contains(s.StartTime) {
			continue
		}
		out = append(out, s)
	}
	return DedupeByID(out)
}

// FilmsFromScreenings collapses screenings into their distinct titles in
// the order they were first seen.
func FilmsFromScreenings(screenings []Screening) []Film {
	seen := map[string]struct{}{}
	films := []Film{}
	for _, s := range screenings {
		if _, ok := seen[s.FilmTitle]; ok {
			continue
		}
		seen[s.FilmTitle] = struct{}{}
		films = append(films, Film{Title: s.FilmTitle})
	}
	return films
}

// SortFilms orders films by title, case-insensitively.
func SortFilms(films []Film) {
	sort.SliceStable(films, func(i, j int) bool {
		return strings.ToLower(films[i].Title) < strings.ToLower(films[j].Title)
	})
}
