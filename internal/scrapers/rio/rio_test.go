package rio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"londoncinemas/internal/cinema"
	"londoncinemas/internal/components/chrono"
	"londoncinemas/internal/components/telemetry"
	"londoncinemas/lib/timezone"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

var now = timezone.Naive(2025, time.December, 26, 10, 0)

func newTestSource(t *testing.T, body string) (Source, *telemetry.Recorder) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Rio.dll/WhatsOn" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	rec := telemetry.NewRecorder()
	return New(Options{BaseUrl: server.URL}, chrono.NewFixed(now), rec), rec
}

func fixture(t *testing.T) string {
	contents, err := os.ReadFile("testdata/whatson.html")
	require.NoError(t, err)
	return string(contents)
}

func str(s string) *string {
	return &s
}

func TestScrape(t *testing.T) {
	source, _ := newTestSource(t, fixture(t))

	screenings, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)

	expected := []cinema.Screening{
		{
			CinemaID:   "rio",
			CinemaName: "Rio Cinema",
			FilmTitle:  "Nosferatu & Friends",
			StartTime:  timezone.Naive(2025, time.December, 26, 14, 30),
			BookingURL: source.baseUrl + "/Rio.dll/Booking?Booking=TSelectItems.waSelectItemsPrices&TcsPerformance_1=1",
			Screen:     str("Screen 1"),
			Notes:      str("Q&A after; No Ads; With director intro"),
			ScrapedAt:  now,
		},
		{
			CinemaID:   "rio",
			CinemaName: "Rio Cinema",
			FilmTitle:  "Nosferatu & Friends",
			StartTime:  timezone.Naive(2025, time.December, 27, 20, 45),
			BookingURL: "https://riocinema.org.uk/Rio.dll/WhatsOn?f=1001",
			Screen:     str("Screen 2"),
			ScrapedAt:  now,
		},
		{
			CinemaID:   "rio",
			CinemaName: "Rio Cinema",
			FilmTitle:  "The Muppet Christmas Carol",
			StartTime:  timezone.Naive(2025, time.December, 26, 11, 0),
			BookingURL: source.baseUrl + "/Rio.dll/Booking?p=7",
			Screen:     str("Screen 1"),
			Notes:      str("Relaxed Screening; Carers & Babies"),
			ScrapedAt:  now,
		},
	}

	diff := cmp.Diff(expected, screenings, cmpopts.EquateApproxTime(0))
	require.Empty(t, diff)
}

func TestScrapeIsIdempotent(t *testing.T) {
	source, _ := newTestSource(t, fixture(t))

	first, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)
	second, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)

	ids := func(screenings []cinema.Screening) []string {
		out := []string{}
		for _, s := range screenings {
			out = append(out, s.ID())
		}
		return out
	}
	require.Equal(t, ids(first), ids(second))
}

const mistypedPage = `<html><body><script>
var Events = {"Events":[
  {"Title":"Paris, Texas","URL":"Rio.dll/WhatsOn?f=2001","Performances":[
    {"StartDate":"2025-12-26","StartTime":1100,"URL":"Booking?p=1"},
    {"StartDate":"2025-12-26","StartTime":"1500","URL":""},
    {"StartDate":"2025-12-27","StartTime":"1800","URL":"Booking?p=3"}
  ]},
  {"Title":42,"Performances":[]},
  {"Title":"Withnail and I","URL":"https://riocinema.org.uk/Rio.dll/WhatsOn?f=2002","Performances":[
    {"StartDate":"2025-12-26","StartTime":"2030","URL":"Booking?p=4"}
  ]}
]};
</script></body></html>`

func TestScrapeSkipsMistypedItems(t *testing.T) {
	source, rec := newTestSource(t, mistypedPage)

	screenings, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)

	expected := []cinema.Screening{
		{
			CinemaID:   "rio",
			CinemaName: "Rio Cinema",
			FilmTitle:  "Paris, Texas",
			StartTime:  timezone.Naive(2025, time.December, 26, 15, 0),
			BookingURL: source.baseUrl + "/Rio.dll/WhatsOn?f=2001",
			ScrapedAt:  now,
		},
		{
			CinemaID:   "rio",
			CinemaName: "Rio Cinema",
			FilmTitle:  "Paris, Texas",
			StartTime:  timezone.Naive(2025, time.December, 27, 18, 0),
			BookingURL: source.baseUrl + "/Rio.dll/Booking?p=3",
			ScrapedAt:  now,
		},
		{
			CinemaID:   "rio",
			CinemaName: "Rio Cinema",
			FilmTitle:  "Withnail and I",
			StartTime:  timezone.Naive(2025, time.December, 26, 20, 30),
			BookingURL: source.baseUrl + "/Rio.dll/Booking?p=4",
			ScrapedAt:  now,
		},
	}
	require.Empty(t, cmp.Diff(expected, screenings, cmpopts.EquateApproxTime(0)))

	require.Len(t, rec.Reports("warning", "rio: source.parse-performance"), 1)
	require.Len(t, rec.Reports("warning", "rio: source.parse-event"), 1)
}

func TestBookingUrlResolvesRelativeEventUrl(t *testing.T) {
	source := New(Options{}, chrono.NewFixed(now), telemetry.NewRecorder())

	testCases := []struct {
		eventUrl string
		expect   string
	}{
		{eventUrl: "Rio.dll/WhatsOn?f=1", expect: "https://riocinema.org.uk/Rio.dll/WhatsOn?f=1"},
		{eventUrl: "/Rio.dll/WhatsOn?f=2", expect: "https://riocinema.org.uk/Rio.dll/WhatsOn?f=2"},
		{eventUrl: "https://example.com/film", expect: "https://example.com/film"},
		{eventUrl: "", expect: ""},
	}
	for _, test := range testCases {
		require.Equal(t, test.expect, source.bookingUrl(event{URL: test.eventUrl}, performance{}), test.eventUrl)
	}
}

func TestScrapeWithoutEmbeddedEvents(t *testing.T) {
	source, rec := newTestSource(t, "<html><body>Maintenance</body></html>")

	_, err := source.Scrape(context.Background(), 14)
	require.ErrorIs(t, err, ErrEventsNotFound)
	require.Len(t, rec.Reports("broken", "rio: source.fetch"), 1)
}

func TestFilms(t *testing.T) {
	source, _ := newTestSource(t, fixture(t))

	films, err := source.Films(context.Background())
	require.NoError(t, err)

	year := 2024
	runtime := 132
	muppetYear := 1992
	muppetRuntime := 85
	expected := []cinema.Film{
		{
			Title:       "Nosferatu & Friends",
			Year:        &year,
			Director:    str("Robert Eggers"),
			RuntimeMins: &runtime,
			Certificate: str("15"),
			Synopsis:    str("A gothic tale of obsession {between} a haunted young woman and a vampire."),
		},
		{
			Title:       "The Muppet Christmas Carol",
			Year:        &muppetYear,
			RuntimeMins: &muppetRuntime,
		},
	}
	require.Empty(t, cmp.Diff(expected, films))
}

func TestPerformanceNotes(t *testing.T) {
	require.Equal(t, "", performanceNotes(performance{}))
	require.Equal(
		t,
		"Q&A after; Hard of Hearing; Relaxed Screening; Carers & Babies; Special Performance; Preview; Family Friendly; No Ads",
		performanceNotes(performance{QA: "Y", HoH: "Y", RS: "Y", CB: "Y", SP: "Y", PP: "Y", FF: "Y", NoAds: "Y"}),
	)
}
