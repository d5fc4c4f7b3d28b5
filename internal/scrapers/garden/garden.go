// Package garden scrapes The Garden Cinema. Its homepage lists every
// upcoming screening grouped into per-date blocks.
package garden

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
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

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	report_source_fetch      = "source.fetch"
	report_source_parse_date = "source.parse-date"
	report_source_screenings = "source.screenings"
)

const DefaultBaseUrl = "https://www.thegardencinema.co.uk"

var Cinema = cinema.Cinema{
	ID:       "garden-cinema",
	Name:     "The Garden Cinema",
	Area:     "Covent Garden",
	Address:  "39-41 Parker Street",
	Postcode: "WC2B 5PQ",
	Website:  "https://thegardencinema.co.uk",
	Chain:    cinema.StrPtr("Independent"),
	Lat:      cinema.FloatPtr(51.5160),
	Lon:      cinema.FloatPtr(-0.1224),
}

type Options struct {
	// BaseUrl defaults to DefaultBaseUrl.
	BaseUrl string
	Dump    restyutil.Output
}

type Source struct {
	http    *resty.Client
	baseUrl *url.URL
	time    chrono.API
	tel     telemetry.API
}

func New(opts Options, time chrono.API, tel telemetry.API) Source {
	assert.NotNil(time)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("garden", tel)

	base := opts.BaseUrl
	if base == "" {
		base = DefaultBaseUrl
	}
	base = strings.TrimSuffix(base, "/")
	baseUrl, err := url.Parse(base + "/")
	if err != nil {
		panic(err)
	}

	client := scrapeutil.NewClient(scrapeutil.ClientOptions{
		BaseUrl:          base,
		CloudflareBypass: true,
		Headers: map[string]string{
			"accept": "text/html,application/xhtml+xml",
		},
		Dump:       opts.Dump,
		DumpPrefix: "garden",
	}, tel)

	return Source{
		http:    client,
		baseUrl: baseUrl,
		time:    time,
		tel:     tel,
	}
}

func (s Source) Cinema() cinema.Cinema {
	return Cinema
}

func (s Source) fetchListings(ctx context.Context) (*goquery.Document, error) {
	res, err := s.http.R().
		SetContext(ctx).
		Get("/")
	if err != nil {
		return nil, fmt.Errorf("fetch listings: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("fetch listings: unexpected status %s", res.Status())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse listings: %w", err)
	}
	return doc, nil
}

var dayNameRegex = regexp.MustCompile(`(?i)^(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\s*`)

// parseDate reads a block heading such as "Friday 26 December". Dates more
// than a day in the past are taken to be next year.
func parseDate(text string, now time.Time) (time.Time, error) {
	text = dayNameRegex.ReplaceAllString(strings.TrimSpace(text), "")
	now = timezone.ToLondon(now)
	parsed, err := time.ParseInLocation("2 January 2006", fmt.Sprintf("%s %d", text, now.Year()), timezone.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date heading %q: %w", text, err)
	}
	if parsed.Before(timezone.StartOfDay(now).AddDate(0, 0, -1)) {
		parsed = parsed.AddDate(1, 0, 0)
	}
	return parsed, nil
}

var (
	suffixRegex = regexp.MustCompile(`(?i)-\s*(Family Screening|Members Only|Q&A).*$`)
	formatRegex = regexp.MustCompile(`(?i)(\d+mm)`)
	timeRegex   = regexp.MustCompile(`(\d{1,2})[:.](\d{2})`)
)

// cleanTitle removes the glued certificate and screening-type suffixes
// ("The Shining15", "Moana - Family ScreeningU").
func cleanTitle(raw string) string {
	title := textutil.StripGluedCertificate(raw)
	return strings.TrimSpace(suffixRegex.ReplaceAllString(title, ""))
}

func (s Source) parseFilmBlock(block *goquery.Selection, date time.Time, scrapedAt time.Time) []cinema.Screening {
	title := cleanTitle(htmlutil.Text(block.Find("h1.films-list__by-date__film__title").First()))
	if title == "" {
		return nil
	}

	notes := []string{}
	stats := htmlutil.Text(block.Find("div.films-list__by-date__film__stats").First())
	if groups := formatRegex.FindStringSubmatch(stats); len(groups) == 2 {
		notes = append(notes, groups[1])
	}
	season := htmlutil.Text(block.Find("span.films-list__by-date__film__season__link").First())
	if strings.Contains(season, "Family") {
		notes = append(notes, "Family Screening")
	}

	screenings := []cinema.Screening{}
	block.Find("div.films-list__by-date__film__screeningtimes").First().
		Find(`a[href*="TcsPerformance"]`).
		Each(func(_ int, link *goquery.Selection) {
			text := htmlutil.Text(link)
			if strings.Contains(strings.ToLower(text), "sold out") {
				return
			}
			groups := timeRegex.FindStringSubmatch(text)
			if len(groups) != 3 {
				return
			}
			hour, _ := strconv.Atoi(groups[1])
			minute, _ := strconv.Atoi(groups[2])
			if hour > 23 || minute > 59 {
				return
			}
			start := timezone.Naive(date.Year(), date.Month(), date.Day(), hour, minute)

			screeningNotes := notes
			if link.Closest("div.screening-panel").HasClass("audio_description") {
				screeningNotes = append(append([]string{}, notes...), "Audio Description")
			}

			booking := htmlutil.Resolve(s.baseUrl, link.AttrOr("href", ""))
			screening := cinema.NewScreening(Cinema, title, start, booking, scrapedAt)
			screening.Notes = cinema.StrPtr(textutil.JoinNotes(screeningNotes...))
			screenings = append(screenings, screening)
		})
	return screenings
}

func bookingKey(s cinema.Screening) string {
	return scrapeutil.NormalizeURL(s.BookingURL)
}

func (s Source) Scrape(ctx context.Context, daysAhead int) ([]cinema.Screening, error) {
	now := s.time.Now()
	window := cinema.NewWindow(now, daysAhead)

	doc, err := s.fetchListings(ctx)
	if err != nil {
		s.tel.ReportBroken(report_source_fetch, err)
		return nil, err
	}

	screenings := []cinema.Screening{}
	doc.Find("div.date-block").Each(func(_ int, block *goquery.Selection) {
		heading := block.Find("h2.films-list__by-date__date__title").First()
		if heading.Length() == 0 {
			return
		}
		date, err := parseDate(htmlutil.Text(heading), now)
		if err != nil {
			s.tel.ReportWarning(report_source_parse_date, err)
			return
		}
		if !date.Before(window.End) {
			return
		}
		block.Find("div.films-list__by-date__film").Each(func(_ int, film *goquery.Selection) {
			screenings = append(screenings, s.parseFilmBlock(film, date, now)...)
		})
	})

	screenings = cinema.Dedupe(screenings, bookingKey)
	screenings = cinema.Finalize(Cinema, window, screenings)
	s.tel.ReportCount(report_source_screenings, int64(len(screenings)))
	return screenings, nil
}

// Films are derived from the screenings, the listings carry no film pages.
func (s Source) Films(ctx context.Context) ([]cinema.Film, error) {
	screenings, err := s.Scrape(ctx, cinema.DefaultDaysAhead)
	if err != nil {
		return nil, err
	}
	return cinema.FilmsFromScreenings(screenings), nil
}
