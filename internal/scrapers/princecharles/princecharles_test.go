package princecharles

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
	"github.com/stretchr/testify/require"
)

var now = timezone.Naive(2025, time.December, 26, 10, 0)

func newTestSource(t *testing.T, status int) (Source, *telemetry.Recorder, string) {
	contents, err := os.ReadFile("testdata/whatson.html")
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/whats-on/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		w.Write(contents)
	}))
	t.Cleanup(server.Close)

	rec := telemetry.NewRecorder()
	return New(Options{BaseUrl: server.URL}, chrono.NewFixed(now), rec), rec, server.URL
}

func str(s string) *string {
	return &s
}

func at(month time.Month, day, hour, min int) time.Time {
	year := 2025
	if month == time.January {
		year = 2026
	}
	return timezone.Naive(year, month, day, hour, min)
}

func ptr(t time.Time) *time.Time {
	return &t
}

func TestScrape(t *testing.T) {
	source, rec, baseUrl := newTestSource(t, http.StatusOK)

	screenings, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)

	screening := func(title string, start time.Time, booking string) cinema.Screening {
		return cinema.Screening{
			CinemaID:   "prince-charles-cinema",
			CinemaName: "Prince Charles Cinema",
			FilmTitle:  title,
			StartTime:  start,
			BookingURL: booking,
			ScrapedAt:  now,
		}
	}

	first := screening("Nosferatu", at(time.December, 26, 14, 30), "https://princecharlescinema.com/booking/123")
	first.EndTime = ptr(at(time.December, 26, 16, 42))
	first.Notes = str("Q&A; 35mm")

	second := screening("Nosferatu", at(time.December, 26, 20, 45), "https://princecharlescinema.com/booking/124")
	second.EndTime = ptr(at(time.December, 26, 22, 57))
	second.Notes = str("Sold Out")

	third := screening("The Room", at(time.December, 26, 23, 59), baseUrl+"/booking/201")
	third.Notes = str("£1 Members")

	fourth := screening("Nosferatu", at(time.January, 3, 18, 0), baseUrl+"/booking/125")
	fourth.EndTime = ptr(at(time.January, 3, 20, 12))

	require.Empty(t, cmp.Diff([]cinema.Screening{first, second, fourth, third}, screenings))
	require.Len(t, rec.Reports("warning", report_source_parse_time), 1)
	require.Len(t, rec.Reports("count", report_source_screenings), 1)
}

func TestScrapeUpstreamError(t *testing.T) {
	source, rec, _ := newTestSource(t, http.StatusServiceUnavailable)

	screenings, err := source.Scrape(context.Background(), 14)
	require.Error(t, err)
	require.Empty(t, screenings)
	require.Len(t, rec.Reports("broken", report_source_fetch), 1)
}

func TestFilms(t *testing.T) {
	source, _, _ := newTestSource(t, http.StatusOK)

	films, err := source.Films(context.Background())
	require.NoError(t, err)

	year := 2024
	runtime := 132
	expected := []cinema.Film{
		{
			Title:       "Nosferatu",
			Year:        &year,
			Director:    str("Robert Eggers"),
			RuntimeMins: &runtime,
			Certificate: str("15"),
			Synopsis:    str("A gothic tale of obsession. Presented on 35mm."),
		},
		{
			Title:       "The Room",
			Certificate: str("18"),
		},
	}
	require.Empty(t, cmp.Diff(expected, films))
}

func TestParseHeading(t *testing.T) {
	cases := []struct {
		text     string
		expected time.Time
	}{
		{text: "Friday 26th December", expected: timezone.Naive(2025, time.December, 26, 0, 0)},
		{text: "Thursday 1st January", expected: timezone.Naive(2026, time.January, 1, 0, 0)},
		{text: "Monday 3rd November", expected: timezone.Naive(2025, time.November, 3, 0, 0)},
		{text: "Sunday 22nd June", expected: timezone.Naive(2026, time.June, 22, 0, 0)},
	}
	for _, c := range cases {
		parsed, err := parseHeading(c.text, now)
		require.NoError(t, err, c.text)
		require.True(t, c.expected.Equal(parsed), "%s: got %s", c.text, parsed)
	}

	_, err := parseHeading("Coming soon", now)
	require.Error(t, err)
}

func TestScrapeIsIdempotent(t *testing.T) {
	source, _, _ := newTestSource(t, http.StatusOK)

	first, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)
	second, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)

	require.NotEmpty(t, first)
	require.Empty(t, cmp.Diff(first, second))
}
