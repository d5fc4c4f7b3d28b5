package vue

import (
	"context"
	"testing"
	"time"

	"londoncinemas/internal/cinema"
	"londoncinemas/internal/components/chrono"
	"londoncinemas/internal/components/telemetry"
	"londoncinemas/lib/browser"
	"londoncinemas/lib/browser/browsertest"
	"londoncinemas/lib/timezone"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var now = timezone.Naive(2025, time.December, 26, 10, 0)

const apiBase = "https://www.myvue.com/api/microservice/showings"

const firstShowings = `{"result": [
	{
		"filmTitle": "Wicked: For Good",
		"showingGroups": [{"sessions": [
			{
				"startTime": "2025-12-26T14:00:00",
				"endTime": "2025-12-26T16:40:00",
				"bookingUrl": "/book/islington/session/111",
				"attributes": [{"shortName": "AD"}, {"shortName": "Subtitled"}, {"shortName": "English"}]
			},
			{"startTime": "2025-12-26T18:30:00+00:00", "attributes": [{"shortName": "Lux"}]},
			{"endTime": "2025-12-26T23:00:00"},
			{"startTime": "tonight"}
		]}]
	},
	{"filmTitle": "", "showingGroups": [{"sessions": [{"startTime": "2025-12-26T12:00:00"}]}]}
]}`

const secondShowings = `{"result": [
	{
		"filmTitle": "Wicked: For Good",
		"showingGroups": [{"sessions": [
			{"startTime": "2025-12-26T14:00:00", "bookingUrl": "/book/islington/session/111"},
			{"startTime": "2025-12-27T20:00:00", "bookingUrl": "/book/islington/session/222"}
		]}]
	}
]}`

const showingDates = `{"result": [
	{"date": "2025-12-26T00:00:00"},
	{"date": "2025-12-27T00:00:00"},
	{"date": "2025-12-28T00:00:00"}
]}`

func pages() map[string]browsertest.Page {
	return map[string]browsertest.Page{
		"https://www.myvue.com/cinema/islington/whats-on": {Responses: []browser.Response{
			{URL: apiBase + "/cinemas/10099/films", Status: 200, Body: []byte(`{"result": []}`)},
			{URL: apiBase + "/cinemas/10032/films", Status: 200, Body: []byte(firstShowings)},
			{URL: apiBase + "/showingDates?cinemaId=10032", Status: 200, Body: []byte(showingDates)},
		}},
		"https://www.myvue.com/cinema/islington/whats-on?date=2025-12-27": {Responses: []browser.Response{
			{URL: apiBase + "/cinemas/10032/films?date=2025-12-27", Status: 200, Body: []byte(secondShowings)},
		}},
	}
}

func str(s string) *string {
	return &s
}

func TestScrape(t *testing.T) {
	fake := &browsertest.Fake{Pages: pages()}
	rec := telemetry.NewRecorder()
	source := New(Options{}, fake, chrono.NewFixed(now), rec)

	screenings, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)

	end := timezone.Naive(2025, time.December, 26, 16, 40)
	expected := []cinema.Screening{
		{
			CinemaID:   "vue-islington",
			CinemaName: "Vue Islington",
			FilmTitle:  "Wicked: For Good",
			StartTime:  timezone.Naive(2025, time.December, 26, 14, 0),
			EndTime:    &end,
			BookingURL: "https://www.myvue.com/book/islington/session/111",
			Notes:      str("Subtitled"),
			ScrapedAt:  now,
		},
		{
			CinemaID:   "vue-islington",
			CinemaName: "Vue Islington",
			FilmTitle:  "Wicked: For Good",
			StartTime:  timezone.Naive(2025, time.December, 26, 18, 30),
			BookingURL: "https://www.myvue.com/cinema/islington",
			ScrapedAt:  now,
		},
		{
			CinemaID:   "vue-islington",
			CinemaName: "Vue Islington",
			FilmTitle:  "Wicked: For Good",
			StartTime:  timezone.Naive(2025, time.December, 27, 20, 0),
			BookingURL: "https://www.myvue.com/book/islington/session/222",
			ScrapedAt:  now,
		},
	}
	require.Empty(t, cmp.Diff(expected, screenings))

	require.Equal(t, []string{
		"https://www.myvue.com/cinema/islington/whats-on",
		"https://www.myvue.com/cinema/islington/whats-on?date=2025-12-27",
		"https://www.myvue.com/cinema/islington/whats-on?date=2025-12-28",
	}, fake.Visited())
	require.Len(t, rec.Reports("warning", report_source_parse_session), 1)
	require.Len(t, rec.Reports("warning", report_source_load_date), 1)
}

func TestScrapeLimitsShowingDates(t *testing.T) {
	fake := &browsertest.Fake{Pages: pages()}
	source := New(Options{}, fake, chrono.NewFixed(now), telemetry.NewRecorder())

	screenings, err := source.Scrape(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, screenings, 2)
	require.Len(t, fake.Visited(), 1)
}

func TestScrapeWithoutShowings(t *testing.T) {
	fake := &browsertest.Fake{Pages: map[string]browsertest.Page{
		"https://www.myvue.com/cinema/islington/whats-on": {},
	}}
	rec := telemetry.NewRecorder()
	source := New(Options{}, fake, chrono.NewFixed(now), rec)

	_, err := source.Scrape(context.Background(), 14)
	require.ErrorIs(t, err, ErrNoShowings)
	require.Len(t, rec.Reports("broken", report_source_navigate), 1)
}

func TestFilms(t *testing.T) {
	fake := &browsertest.Fake{Pages: pages()}
	source := New(Options{}, fake, chrono.NewFixed(now), telemetry.NewRecorder())

	films, err := source.Films(context.Background())
	require.NoError(t, err)
	require.Equal(t, []cinema.Film{{Title: "Wicked: For Good"}}, films)
}

func TestScrapeIsIdempotent(t *testing.T) {
	fake := &browsertest.Fake{Pages: pages()}
	source := New(Options{}, fake, chrono.NewFixed(now), telemetry.NewRecorder())

	first, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)
	second, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)

	require.NotEmpty(t, first)
	require.Empty(t, cmp.Diff(first, second))
}
