package curzon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
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

const token = "Bearer test-token"

const observedFilms = `{"films": [
	{"id": "HO0001", "title": {"text": " Nosferatu "}, "runtimeInMinutes": 132,
	 "synopsis": {"text": "A gothic tale."}, "releaseDate": "2024-12-25T00:00:00", "censorRatingId": "15"},
	{"id": "HO0002", "title": {"text": "Paddington in Peru"}, "runtimeInMinutes": "106"}
]}`

const dates = `{"businessDates": [
	"2025-12-26",
	{"businessDate": "2025-12-27T00:00:00"},
	"2026-02-01"
]}`

const showtimes = `{"showtimes": [
	{
		"id": "HOX1-1001", "filmId": "HO0001", "screenId": "HOX1-2",
		"schedule": {
			"startsAt": "2025-12-26T14:00:00+00:00",
			"filmStartsAt": "2025-12-26T14:20:00+00:00",
			"endsAt": "2025-12-26T16:30:00+00:00"
		},
		"requires3dGlasses": true, "isSoldOut": true
	},
	{
		"id": "HOX1-1002", "filmId": "HO0099",
		"schedule": {"startsAt": "2025-12-26T21:00:00Z"}
	},
	{"id": "HOX1-1003", "filmId": "HO0002", "schedule": {}}
]}`

type testApi struct {
	filmsCalls int
	dateCalls  []string
}

func newTestApi(t *testing.T, api *testApi) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scoped := r.URL.Path == "/films" || r.URL.Query().Get("siteIds") == "HOX1"
		if r.Header.Get("authorization") != token || !scoped {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/films":
			api.filmsCalls++
			w.Write([]byte(observedFilms))
		case "/film-screening-dates":
			w.Write([]byte(dates))
		case "/showtimes/by-business-date/2025-12-26":
			api.dateCalls = append(api.dateCalls, "2025-12-26")
			w.Write([]byte(showtimes))
		default:
			api.dateCalls = append(api.dateCalls, r.URL.Path)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func venuePage(withFilms bool) map[string]browsertest.Page {
	responses := []browser.Response{
		{
			URL:            "https://vwc.curzon.com/WSVistaWebClient/ocapi/v1/sites",
			Status:         200,
			RequestHeaders: map[string]string{"Authorization": token},
		},
		{
			URL:    "https://www.curzon.com/static/app.js",
			Status: 200,
		},
	}
	if withFilms {
		responses = append(responses, browser.Response{
			URL:            "https://vwc.curzon.com/WSVistaWebClient/ocapi/v1/films",
			Status:         200,
			RequestHeaders: map[string]string{"authorization": token},
			Body:           []byte(observedFilms),
		})
	}
	return map[string]browsertest.Page{
		"https://www.curzon.com/venues/hoxton/": {HTML: "<html></html>", Responses: responses},
	}
}

func str(s string) *string {
	return &s
}

func TestScrape(t *testing.T) {
	api := &testApi{}
	server := newTestApi(t, api)
	fake := &browsertest.Fake{Pages: venuePage(true)}
	rec := telemetry.NewRecorder()
	source := New(Options{ApiUrl: server.URL, Interval: time.Millisecond}, fake, chrono.NewFixed(now), rec)

	screenings, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)

	end := timezone.Naive(2025, time.December, 26, 16, 30)
	expected := []cinema.Screening{
		{
			CinemaID:   "curzon-hoxton",
			CinemaName: "Curzon Hoxton",
			FilmTitle:  "Nosferatu",
			StartTime:  timezone.Naive(2025, time.December, 26, 14, 20),
			EndTime:    &end,
			BookingURL: "https://www.curzon.com/booking/HOX1-1001",
			Screen:     str("Screen 2"),
			Notes:      str("3D; Sold Out"),
			ScrapedAt:  now,
		},
		{
			CinemaID:   "curzon-hoxton",
			CinemaName: "Curzon Hoxton",
			FilmTitle:  "Unknown (HO0099)",
			StartTime:  timezone.Naive(2025, time.December, 26, 21, 0),
			BookingURL: "https://www.curzon.com/booking/HOX1-1002",
			ScrapedAt:  now,
		},
	}
	require.Empty(t, cmp.Diff(expected, screenings))

	require.Equal(t, 0, api.filmsCalls, "films observed by the browser are not refetched")
	require.Equal(t, []string{"2025-12-26", "/showtimes/by-business-date/2025-12-27"}, api.dateCalls)
	require.Len(t, rec.Reports("warning", report_source_fetch_showtime), 1)
	require.Len(t, rec.Reports("warning", report_source_parse_showtime), 1)
	require.Equal(t, []string{"https://www.curzon.com/venues/hoxton/"}, fake.Visited())
}

func TestScrapeFetchesFilmsWhenNoneObserved(t *testing.T) {
	api := &testApi{}
	server := newTestApi(t, api)
	fake := &browsertest.Fake{Pages: venuePage(false)}
	source := New(Options{ApiUrl: server.URL, Interval: time.Millisecond}, fake, chrono.NewFixed(now), telemetry.NewRecorder())

	screenings, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)
	require.Equal(t, 1, api.filmsCalls)
	require.Len(t, screenings, 2)
	require.Equal(t, "Nosferatu", screenings[0].FilmTitle)
}

func TestScrapeWithoutToken(t *testing.T) {
	fake := &browsertest.Fake{Pages: map[string]browsertest.Page{
		"https://www.curzon.com/venues/hoxton/": {HTML: "<html></html>"},
	}}
	rec := telemetry.NewRecorder()
	source := New(Options{ApiUrl: "http://127.0.0.1:0"}, fake, chrono.NewFixed(now), rec)

	screenings, err := source.Scrape(context.Background(), 14)
	require.ErrorIs(t, err, ErrNoToken)
	require.Empty(t, screenings)
	require.Len(t, rec.Reports("broken", report_source_acquire_token), 1)
}

func TestScrapeBrowserUnavailable(t *testing.T) {
	fake := &browsertest.Fake{StartErr: errors.New("no chrome")}
	source := New(Options{}, fake, chrono.NewFixed(now), telemetry.NewRecorder())

	_, err := source.Scrape(context.Background(), 14)
	require.Error(t, err)
}

func TestScrapeFallsBackToWindowDates(t *testing.T) {
	requested := []string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/film-screening-dates":
			w.Write([]byte(`{"businessDates": []}`))
		default:
			requested = append(requested, r.URL.Path)
			w.Write([]byte(`{"showtimes": []}`))
		}
	}))
	t.Cleanup(server.Close)

	fake := &browsertest.Fake{Pages: venuePage(true)}
	source := New(Options{ApiUrl: server.URL, Interval: time.Millisecond}, fake, chrono.NewFixed(now), telemetry.NewRecorder())

	screenings, err := source.Scrape(context.Background(), 3)
	require.NoError(t, err)
	require.Empty(t, screenings)
	require.Equal(t, []string{
		"/showtimes/by-business-date/2025-12-26",
		"/showtimes/by-business-date/2025-12-27",
		"/showtimes/by-business-date/2025-12-28",
	}, requested)
}

func TestFilms(t *testing.T) {
	fake := &browsertest.Fake{Pages: venuePage(true)}
	source := New(Options{ApiUrl: "http://127.0.0.1:0"}, fake, chrono.NewFixed(now), telemetry.NewRecorder())

	films, err := source.Films(context.Background())
	require.NoError(t, err)

	year := 2024
	runtime := 132
	paddingtonRuntime := 106
	expected := []cinema.Film{
		{Title: "Nosferatu", Year: &year, RuntimeMins: &runtime, Synopsis: str("A gothic tale.")},
		{Title: "Paddington in Peru", RuntimeMins: &paddingtonRuntime},
	}
	require.Empty(t, cmp.Diff(expected, films))
}

func TestVenueCinema(t *testing.T) {
	require.Equal(t, Hoxton, VenueCinema("hoxton"))

	soho := VenueCinema("soho")
	require.Equal(t, "curzon-soho", soho.ID)
	require.Equal(t, "Curzon Soho", soho.Name)
	require.Equal(t, "https://www.curzon.com/venues/soho/", soho.Website)
}

func TestScrapeIsIdempotent(t *testing.T) {
	server := newTestApi(t, &testApi{})
	fake := &browsertest.Fake{Pages: venuePage(true)}
	source := New(Options{ApiUrl: server.URL, Interval: time.Millisecond}, fake, chrono.NewFixed(now), telemetry.NewRecorder())

	first, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)
	second, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)

	require.NotEmpty(t, first)
	require.Empty(t, cmp.Diff(first, second))
}
