package barbican

import (
	"context"
	"net/http"
	"net/http/httptest"
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

const eventsFixture = `[
	{
		"id": "E1",
		"name": "Family Film Club: Paddington (PG)",
		"description": "Marmalade.",
		"firstInstanceDateTime": "2025-12-20T11:00:00Z",
		"lastInstanceDateTime": "2025-12-28T11:00:00Z",
		"attribute_PrimaryArtForm": "Film",
		"attribute_FilmCertificate": "PG"
	},
	{
		"id": "E2",
		"name": "London Symphony Orchestra",
		"firstInstanceDateTime": "2025-12-27T19:30:00Z",
		"lastInstanceDateTime": "2025-12-27T19:30:00Z",
		"attribute_PrimaryArtForm": "Music",
		"attribute_FilmCertificate": ""
	},
	{
		"id": "E3",
		"name": "Silent Film & Live Music: Metropolis",
		"firstInstanceDateTime": "2026-01-05T19:30:00Z",
		"lastInstanceDateTime": "",
		"attribute_PrimaryArtForm": "",
		"attribute_FilmCertificate": ""
	},
	{
		"id": "E4",
		"name": "Nosferatu",
		"firstInstanceDateTime": "2026-02-01T18:00:00Z",
		"lastInstanceDateTime": "2026-02-03T18:00:00Z",
		"attribute_FilmCertificate": "15"
	},
	{
		"id": "E5",
		"name": "Old Film Season Talk",
		"firstInstanceDateTime": "2025-12-27T18:00:00Z"
	},
	{
		"id": "E6",
		"name": "Documentary Night: Grizzly Man",
		"firstInstanceDateTime": "2025-12-29T18:00:00Z",
		"attribute_PrimaryArtForm": "Film"
	},
	{
		"id": "E7",
		"name": "Cinema Restored: Playtime",
		"firstInstanceDateTime": "2025-11-01T18:00:00Z",
		"lastInstanceDateTime": "2025-11-30T18:00:00Z"
	}
]`

var instancesFixture = map[string]string{
	"E1": `[
		{"id": "I1", "start": "2025-12-26T09:00:00Z", "isOnSale": true},
		{"id": "I2", "start": "2025-12-27T11:00:00Z", "isOnSale": true},
		{"id": "I3", "start": "2025-12-28T11:00:00Z", "isOnSale": false},
		{"id": "I4", "start": "whenever", "isOnSale": true}
	]`,
	"E3": `[
		{"id": "I5", "start": "2026-01-05T19:30:00Z", "isOnSale": true},
		{"id": "I6", "start": "2026-01-06T21:00:00+01:00", "isOnSale": true}
	]`,
}

func newTestSource(t *testing.T, eventsStatus int) (Source, *telemetry.Recorder) {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$filter") != "isOnSale eq true" || r.URL.Query().Get("$top") != "500" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(eventsStatus)
		w.Write([]byte(eventsFixture))
	})
	mux.HandleFunc("/events/{id}/instances", func(w http.ResponseWriter, r *http.Request) {
		body, ok := instancesFixture[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	rec := telemetry.NewRecorder()
	source := New(Options{ApiUrl: server.URL, Interval: time.Millisecond}, chrono.NewFixed(now), rec)
	return source, rec
}

func str(s string) *string {
	return &s
}

func TestScrape(t *testing.T) {
	source, rec := newTestSource(t, http.StatusOK)

	screenings, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)

	expected := []cinema.Screening{
		{
			CinemaID:   "barbican-cinema",
			CinemaName: "Barbican Cinema",
			FilmTitle:  "Paddington",
			StartTime:  timezone.Naive(2025, time.December, 27, 11, 0),
			BookingURL: "https://www.barbican.org.uk/whats-on/2025/12/27/family-film-club-paddington-pg",
			Notes:      str("PG"),
			ScrapedAt:  now,
		},
		{
			CinemaID:   "barbican-cinema",
			CinemaName: "Barbican Cinema",
			FilmTitle:  "Metropolis",
			StartTime:  timezone.Naive(2026, time.January, 5, 19, 30),
			BookingURL: "https://www.barbican.org.uk/whats-on/2026/01/05/silent-film-and-live-music-metropolis",
			ScrapedAt:  now,
		},
		{
			CinemaID:   "barbican-cinema",
			CinemaName: "Barbican Cinema",
			FilmTitle:  "Metropolis",
			StartTime:  timezone.Naive(2026, time.January, 6, 20, 0),
			BookingURL: "https://www.barbican.org.uk/whats-on/2026/01/06/silent-film-and-live-music-metropolis",
			ScrapedAt:  now,
		},
	}
	require.Empty(t, cmp.Diff(expected, screenings))

	// the failing instances call for E6 is skipped, not fatal
	require.Len(t, rec.Reports("warning", "source.fetch-instances"), 1)
	require.Len(t, rec.Reports("warning", "source.parse-instance"), 1)
}

func TestParseInstant(t *testing.T) {
	testCases := []struct {
		value  string
		expect time.Time
	}{
		{value: "2025-12-26T14:30:00Z", expect: timezone.Naive(2025, time.December, 26, 14, 30)},
		{value: "2025-07-01T19:30:00Z", expect: timezone.Naive(2025, time.July, 1, 19, 30)},
		{value: "2025-07-01T18:30:00+00:00", expect: timezone.Naive(2025, time.July, 1, 19, 30)},
		{value: "2025-07-01T19:30:00+01:00", expect: timezone.Naive(2025, time.July, 1, 19, 30)},
		{value: "2025-12-26T14:30:00", expect: timezone.Naive(2025, time.December, 26, 14, 30)},
	}
	for _, test := range testCases {
		parsed, err := parseInstant(test.value)
		require.NoError(t, err, test.value)
		require.True(t, test.expect.Equal(parsed), "%s: %s", test.value, parsed)
	}

	_, err := parseInstant("whenever")
	require.Error(t, err)
}

func TestScrapeEventsFailure(t *testing.T) {
	source, rec := newTestSource(t, http.StatusServiceUnavailable)

	_, err := source.Scrape(context.Background(), 14)
	require.Error(t, err)
	require.Len(t, rec.Reports("broken", "barbican: source.fetch-events"), 1)
}

func TestIsFilmEvent(t *testing.T) {
	testCases := []struct {
		event  event
		expect bool
	}{
		{event: event{Name: "Anything", PrimaryArtForm: "film"}, expect: true},
		{event: event{Name: "Parent & Baby Screening: Wicked"}, expect: true},
		{event: event{Name: "Animation Now!"}, expect: true},
		{event: event{Name: "Conclave", FilmCertificate: "12A"}, expect: true},
		{event: event{Name: "Jazz at the Barbican", PrimaryArtForm: "Music"}, expect: false},
		{event: event{Name: "Filmmaker talk"}, expect: false},
	}
	for _, test := range testCases {
		require.Equal(t, test.expect, isFilmEvent(test.event), test.event.Name)
	}
}

func TestCleanTitle(t *testing.T) {
	testCases := []struct {
		name   string
		expect string
	}{
		{name: "Family Film Club: Paddington in Peru (PG)", expect: "Paddington in Peru"},
		{name: "Event Cinema: NT Live: Hamlet", expect: "NT Live: Hamlet"},
		{name: "Magic Mondays: Spirited Away (U*)", expect: "Spirited Away"},
		{name: "Nosferatu (15)", expect: "Nosferatu"},
		{name: "Perfect Days", expect: "Perfect Days"},
	}
	for _, test := range testCases {
		require.Equal(t, test.expect, cleanTitle(test.name))
	}
}

func TestFilms(t *testing.T) {
	source, _ := newTestSource(t, http.StatusOK)

	films, err := source.Films(context.Background())
	require.NoError(t, err)

	titles := []string{}
	for _, f := range films {
		titles = append(titles, f.Title)
	}
	// Nosferatu is within the 60 day horizon, Playtime is over
	require.Equal(t, []string{"Paddington", "Metropolis", "Nosferatu", "Documentary Night: Grizzly Man"}, titles)
	require.Equal(t, "PG", *films[0].Certificate)
	require.Equal(t, "Marmalade.", *films[0].Synopsis)
}

func TestScrapeIsIdempotent(t *testing.T) {
	source, _ := newTestSource(t, http.StatusOK)

	first, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)
	second, err := source.Scrape(context.Background(), 14)
	require.NoError(t, err)

	require.NotEmpty(t, first)
	require.Empty(t, cmp.Diff(first, second))
}
