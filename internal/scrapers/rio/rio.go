// Package rio scrapes the Rio Cinema in Dalston. The listings page embeds the
// whole programme as a `var Events = {...}` javascript assignment.
package rio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"

	"londoncinemas/internal/cinema"
	"londoncinemas/internal/components/assert"
	"londoncinemas/internal/components/chrono"
	"londoncinemas/internal/components/telemetry"
	"londoncinemas/internal/scrapers/scrapeutil"
	"londoncinemas/lib/htmlutil"
	"londoncinemas/lib/restyutil"
	"londoncinemas/lib/textutil"
	"londoncinemas/lib/timezone"

	"github.com/go-resty/resty/v2"
)

const (
	report_source_fetch             = "source.fetch"
	report_source_parse_event       = "source.parse-event"
	report_source_parse_performance = "source.parse-performance"
	report_source_screenings        = "source.screenings"
)

var ErrEventsNotFound = errors.New("rio: embedded events not found")

var Cinema = cinema.Cinema{
	ID:       "rio",
	Name:     "Rio Cinema",
	Area:     "Dalston",
	Address:  "107 Kingsland High Street",
	Postcode: "E8 2PB",
	Website:  "https://riocinema.org.uk",
	Chain:    cinema.StrPtr("Independent"),
	Lat:      cinema.FloatPtr(51.5489),
	Lon:      cinema.FloatPtr(-0.0758),
}

type Options struct {
	// BaseUrl defaults to the venue website.
	BaseUrl string
	Dump    restyutil.Output
}

type Source struct {
	http    *resty.Client
	baseUrl string
	base    *url.URL
	time    chrono.API
	tel     telemetry.API
}

func New(opts Options, time chrono.API, tel telemetry.API) Source {
	assert.NotNil(time)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("rio", tel)

	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = Cinema.Website
	}
	baseUrl = strings.TrimSuffix(baseUrl, "/")
	// htmlutil.Resolve tolerates a nil base
	base, _ := url.Parse(baseUrl + "/")

	client := scrapeutil.NewClient(scrapeutil.ClientOptions{
		BaseUrl: baseUrl,
		Headers: map[string]string{
			"accept": "text/html,application/xhtml+xml",
		},
		Dump:       opts.Dump,
		DumpPrefix: "rio",
	}, tel)

	return Source{
		http:    client,
		baseUrl: baseUrl,
		base:    base,
		time:    time,
		tel:     tel,
	}
}

func (s Source) Cinema() cinema.Cinema {
	return Cinema
}

type performance struct {
	StartDate      string             `json:"StartDate"`
	StartTime      string             `json:"StartTime"`
	URL            string             `json:"URL"`
	AuditoriumName string             `json:"AuditoriumName"`
	Notes          string             `json:"Notes"`
	IsOpenForSale  scrapeutil.FlexBool `json:"IsOpenForSale"`

	QA    string `json:"QA"`
	HoH   string `json:"HoH"`
	RS    string `json:"RS"`
	CB    string `json:"CB"`
	SP    string `json:"SP"`
	PP    string `json:"PP"`
	FF    string `json:"FF"`
	NoAds string `json:"NoAds"`
}

type event struct {
	Title        string             `json:"Title"`
	URL          string             `json:"URL"`
	Year         scrapeutil.FlexInt `json:"Year"`
	Director     string             `json:"Director"`
	RunningTime  scrapeutil.FlexInt `json:"RunningTime"`
	Rating       string             `json:"Rating"`
	Synopsis     string             `json:"Synopsis"`
	// decoded one at a time so a malformed performance only loses itself
	Performances []json.RawMessage `json:"Performances"`
}

type catalog struct {
	Events []json.RawMessage `json:"Events"`
}

// fetchCatalog returns every event that decodes, events with an unexpected
// shape are reported and skipped.
func (s Source) fetchCatalog(ctx context.Context) ([]event, error) {
	res, err := s.http.R().
		SetContext(ctx).
		Get("/Rio.dll/WhatsOn")
	if err != nil {
		return nil, fmt.Errorf("fetch listings: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("fetch listings: unexpected status %s", res.Status())
	}

	raw, err := htmlutil.ExtractJSONObject(res.String(), "var Events")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEventsNotFound, err)
	}

	var out catalog
	err = json.Unmarshal([]byte(raw), &out)
	if err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}

	events := make([]event, 0, len(out.Events))
	for i, rawEvent := range out.Events {
		var e event
		err := json.Unmarshal(rawEvent, &e)
		if err != nil {
			s.tel.ReportWarning(report_source_parse_event, err, i)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// flags are rendered in this order.
var flagLabels = []struct {
	get   func(p performance) string
	label string
}{
	{get: func(p performance) string { return p.QA }, label: "Q&A after"},
	{get: func(p performance) string { return p.HoH }, label: "Hard of Hearing"},
	{get: func(p performance) string { return p.RS }, label: "Relaxed Screening"},
	{get: func(p performance) string { return p.CB }, label: "Carers & Babies"},
	{get: func(p performance) string { return p.SP }, label: "Special Performance"},
	{get: func(p performance) string { return p.PP }, label: "Preview"},
	{get: func(p performance) string { return p.FF }, label: "Family Friendly"},
	{get: func(p performance) string { return p.NoAds }, label: "No Ads"},
}

func performanceNotes(p performance) string {
	parts := []string{}
	for _, flag := range flagLabels {
		if flag.get(p) == "Y" {
			parts = append(parts, flag.label)
		}
	}
	parts = append(parts, p.Notes)
	return textutil.JoinNotes(parts...)
}

func parseStart(date, hhmm string) (time.Time, error) {
	parsed, err := time.ParseInLocation("2006-01-02 1504", fmt.Sprintf("%s %s", date, hhmm), timezone.Location)
	if err != nil {
		return time.Time{}, err
	}
	return parsed, nil
}

func (s Source) bookingUrl(e event, p performance) string {
	if p.URL != "" {
		return fmt.Sprintf("%s/Rio.dll/%s", s.baseUrl, strings.TrimPrefix(p.URL, "/"))
	}
	return htmlutil.Resolve(s.base, e.URL)
}

func (s Source) parseEvent(e event, scrapedAt time.Time) []cinema.Screening {
	title := html.UnescapeString(strings.TrimSpace(e.Title))
	if title == "" {
		return nil
	}

	screenings := []cinema.Screening{}
	for _, rawPerformance := range e.Performances {
		var p performance
		err := json.Unmarshal(rawPerformance, &p)
		if err != nil {
			s.tel.ReportWarning(report_source_parse_performance, err, title)
			continue
		}
		if !p.IsOpenForSale.Or(true) {
			continue
		}
		if p.StartDate == "" || p.StartTime == "" {
			continue
		}

		start, err := parseStart(p.StartDate, p.StartTime)
		if err != nil {
			s.tel.ReportWarning(report_source_parse_performance, err, title)
			continue
		}

		screening := cinema.NewScreening(Cinema, title, start, s.bookingUrl(e, p), scrapedAt)
		screening.Screen = cinema.StrPtr(strings.TrimSpace(p.AuditoriumName))
		screening.Notes = cinema.StrPtr(performanceNotes(p))
		screenings = append(screenings, screening)
	}
	return screenings
}

func (s Source) Scrape(ctx context.Context, daysAhead int) ([]cinema.Screening, error) {
	now := s.time.Now()
	window := cinema.NewWindow(now, daysAhead)

	events, err := s.fetchCatalog(ctx)
	if err != nil {
		s.tel.ReportBroken(report_source_fetch, err)
		return nil, err
	}

	screenings := []cinema.Screening{}
	for _, e := range events {
		screenings = append(screenings, s.parseEvent(e, now)...)
	}

	screenings = cinema.Finalize(Cinema, window, screenings)
	s.tel.ReportCount(report_source_screenings, int64(len(screenings)))
	return screenings, nil
}

var certificateRegex = regexp.MustCompile(`BBFC Rating:\s*\((\w+)\)`)

func parseCertificate(rating string) string {
	groups := certificateRegex.FindStringSubmatch(rating)
	if len(groups) < 2 {
		return ""
	}
	return groups[1]
}

func (s Source) Films(ctx context.Context) ([]cinema.Film, error) {
	events, err := s.fetchCatalog(ctx)
	if err != nil {
		s.tel.ReportBroken(report_source_fetch, err)
		return nil, err
	}

	films := []cinema.Film{}
	for _, e := range events {
		title := html.UnescapeString(strings.TrimSpace(e.Title))
		if title == "" {
			continue
		}
		films = append(films, cinema.Film{
			Title:       title,
			Year:        cinema.IntPtr(int(e.Year)),
			Director:    cinema.StrPtr(strings.TrimSpace(e.Director)),
			RuntimeMins: cinema.IntPtr(int(e.RunningTime)),
			Certificate: cinema.StrPtr(parseCertificate(e.Rating)),
			Synopsis:    cinema.StrPtr(strings.TrimSpace(e.Synopsis)),
		})
	}
	return films, nil
}
