// Package barbican scrapes the Barbican's cinema programme through the
// public Spektrix ticketing API, which lists every Barbican event, so
// film events have to be picked out heuristically.
package barbican

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"londoncinemas/internal/cinema"
	"londoncinemas/internal/components/assert"
	"londoncinemas/internal/components/chrono"
	"londoncinemas/internal/components/telemetry"
	"londoncinemas/internal/scrapers/scrapeutil"
	"londoncinemas/lib/restyutil"
	"londoncinemas/lib/textutil"
	"londoncinemas/lib/timezone"

	"github.com/go-resty/resty/v2"
	"github.com/gosimple/slug"
)

const (
	report_source_fetch_events    = "source.fetch-events"
	report_source_fetch_instances = "source.fetch-instances"
	report_source_parse_instance  = "source.parse-instance"
	report_source_screenings      = "source.screenings"
)

const (
	DefaultApiUrl = "https://spektrix.barbican.org.uk/barbicancentre/api/v3"
	webUrl        = "https://www.barbican.org.uk"
	// filmsHorizon is how far ahead Films looks for events.
	filmsHorizon = 60
)

var Cinema = cinema.Cinema{
	ID:       "barbican-cinema",
	Name:     "Barbican Cinema",
	Area:     "Barbican",
	Address:  "Silk Street",
	Postcode: "EC2Y 8DS",
	Website:  "https://www.barbican.org.uk/whats-on/cinema",
	Lat:      cinema.FloatPtr(51.5200),
	Lon:      cinema.FloatPtr(-0.0936),
}

type Options struct {
	// ApiUrl defaults to DefaultApiUrl.
	ApiUrl string
	// Interval is the pause between per-event requests, defaults to 100ms.
	Interval time.Duration
	Dump     restyutil.Output
}

type Source struct {
	http *resty.Client
	time chrono.API
	tel  telemetry.API
}

func New(opts Options, clock chrono.API, tel telemetry.API) Source {
	assert.NotNil(clock)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("barbican", tel)

	apiUrl := opts.ApiUrl
	if apiUrl == "" {
		apiUrl = DefaultApiUrl
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	client := scrapeutil.NewClient(scrapeutil.ClientOptions{
		BaseUrl:  strings.TrimSuffix(apiUrl, "/"),
		Interval: interval,
		Headers: map[string]string{
			"accept":  "application/json",
			"origin":  webUrl,
			"referer": webUrl + "/",
		},
		Dump:       opts.Dump,
		DumpPrefix: "barbican",
	}, tel)

	return Source{
		http: client,
		time: clock,
		tel:  tel,
	}
}

func (s Source) Cinema() cinema.Cinema {
	return Cinema
}

type event struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	FirstInstance   string `json:"firstInstanceDateTime"`
	LastInstance    string `json:"lastInstanceDateTime"`
	PrimaryArtForm  string `json:"attribute_PrimaryArtForm"`
	FilmCertificate string `json:"attribute_FilmCertificate"`
}

type instance struct {
	ID       string `json:"id"`
	Start    string `json:"start"`
	IsOnSale bool   `json:"isOnSale"`
}

var filmKeywords = []string{
	"film club",
	"cinema",
	"screening",
	"silent film",
	"animation",
	"documentary",
}

// isFilmEvent decides whether a Spektrix event is a screening: an explicit
// art form, a film-ish name or a film certificate are each sufficient.
func isFilmEvent(e event) bool {
	if strings.EqualFold(strings.TrimSpace(e.PrimaryArtForm), "film") {
		return true
	}
	name := strings.ToLower(e.Name)
	for _, keyword := range filmKeywords {
		if strings.Contains(name, keyword) {
			return true
		}
	}
	return strings.TrimSpace(e.FilmCertificate) != ""
}

var seriesPrefixes = []string{
	"Family Film Club:",
	"Silent Film & Live Music:",
	"Event Cinema:",
	"Pay What You Can:",
	"Magic Mondays:",
	"Parent & Baby:",
}

var certificateSuffix = regexp.MustCompile(`\s*\([UPG0-9*]+\)\s*$`)

func cleanTitle(name string) string {
	title := strings.TrimSpace(name)
	for _, prefix := range seriesPrefixes {
		if strings.HasPrefix(title, prefix) {
			title = strings.TrimSpace(title[len(prefix):])
			break
		}
	}
	title = certificateSuffix.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

// bookingUrl points at the event's page on the Barbican website, the
// ticketing widget lives there.
func bookingUrl(eventName string, start time.Time) string {
	return fmt.Sprintf(
		"%s/whats-on/%s/%s",
		webUrl,
		start.Format("2006/01/02"),
		slug.Make(eventName),
	)
}

func (s Source) fetchEvents(ctx context.Context, from, until time.Time) ([]event, error) {
	var events []event
	res, err := s.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"$filter":  "isOnSale eq true",
			"$orderby": "firstInstanceDateTime",
			"$top":     "500",
		}).
		SetResult(&events).
		Get("/events")
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("fetch events: unexpected status %s", res.Status())
	}

	out := []event{}
	for _, e := range events {
		if !isFilmEvent(e) || e.FirstInstance == "" {
			continue
		}
		first, err := parseInstant(e.FirstInstance)
		if err != nil {
			continue
		}
		last := first
		if e.LastInstance != "" {
			last, err = parseInstant(e.LastInstance)
			if err != nil {
				continue
			}
		}
		if last.Before(from) || !first.Before(until) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// parseInstant reads a Spektrix timestamp. Spektrix suffixes London wall
// clock times with Z, explicit offsets are converted to London.
func parseInstant(value string) (time.Time, error) {
	return timezone.Parse(strings.TrimSuffix(strings.TrimSpace(value), "Z"))
}

func (s Source) fetchInstances(ctx context.Context, e event, now time.Time, window cinema.Window) ([]cinema.Screening, error) {
	var instances []instance
	res, err := s.http.R().
		SetContext(ctx).
		SetPathParam("id", e.ID).
		SetResult(&instances).
		Get("/events/{id}/instances")
	if err != nil {
		return nil, fmt.Errorf("fetch instances: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("fetch instances: unexpected status %s", res.Status())
	}

	title := cleanTitle(e.Name)
	screenings := []cinema.Screening{}
	for _, inst := range instances {
		if !inst.IsOnSale || inst.Start == "" {
			continue
		}
		start, err := parseInstant(inst.Start)
		if err != nil {
			s.tel.ReportWarning(report_source_parse_instance, err, e.Name)
			continue
		}
		if start.Before(now) || !window.Contains(start) {
			continue
		}

		screening := cinema.NewScreening(Cinema, title, start, bookingUrl(e.Name, start), now)
		screening.Notes = textutil.Ptr(textutil.JoinNotes(e.FilmCertificate))
		screenings = append(screenings, screening)
	}
	return screenings, nil
}

func (s Source) Scrape(ctx context.Context, daysAhead int) ([]cinema.Screening, error) {
	now := s.time.Now()
	window := cinema.NewWindow(now, daysAhead)

	events, err := s.fetchEvents(ctx, now, window.End)
	if err != nil {
		s.tel.ReportBroken(report_source_fetch_events, err)
		return nil, err
	}
	s.tel.ReportDebug("film events", len(events))

	screenings := []cinema.Screening{}
	for _, e := range events {
		eventScreenings, err := s.fetchInstances(ctx, e, now, window)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.tel.ReportWarning(report_source_fetch_instances, err, e.ID, e.Name)
			continue
		}
		screenings = append(screenings, eventScreenings...)
	}

	screenings = cinema.Finalize(Cinema, window, screenings)
	s.tel.ReportCount(report_source_screenings, int64(len(screenings)))
	return screenings, nil
}

func (s Source) Films(ctx context.Context) ([]cinema.Film, error) {
	now := s.time.Now()
	events, err := s.fetchEvents(ctx, now, now.AddDate(0, 0, filmsHorizon))
	if err != nil {
		s.tel.ReportBroken(report_source_fetch_events, err)
		return nil, err
	}

	films := []cinema.Film{}
	for _, e := range events {
		films = append(films, cinema.Film{
			Title:       cleanTitle(e.Name),
			Certificate: cinema.StrPtr(strings.TrimSpace(e.FilmCertificate)),
			Synopsis:    cinema.StrPtr(strings.TrimSpace(e.Description)),
		})
	}
	return films, nil
}
