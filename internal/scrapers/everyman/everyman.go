// Package everyman scrapes Everyman Broadgate. Showtimes are rendered client
// side, so the venue page is loaded in a browser and the rendered DOM is read
// once per date view (today, tomorrow, next 7 days).
package everyman

import (
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
	"londoncinemas/lib/browser"
	"londoncinemas/lib/htmlutil"
	"londoncinemas/lib/textutil"
	"londoncinemas/lib/timezone"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_source_navigate   = "source.navigate"
	report_source_read_view  = "source.read-view"
	report_source_select_day = "source.select-day"
	report_source_screenings = "source.screenings"
)

var Cinema = cinema.Cinema{
	ID:       "everyman-broadgate",
	Name:     "Everyman Broadgate",
	Area:     "Broadgate",
	Address:  "35 Broadgate Circle",
	Postcode: "EC2M 2QS",
	Website:  "https://www.everymancinema.com/venues-list/x11nt-everyman-broadgate/",
	Chain:    cinema.StrPtr("Everyman"),
	Lat:      cinema.FloatPtr(51.5197),
	Lon:      cinema.FloatPtr(-0.0841),
}

// maxAncestorDepth bounds the upward search from a title heading to the
// container holding its purchase links.
const maxAncestorDepth = 10

type Options struct {
	// VenueUrl defaults to the venue website.
	VenueUrl string
}

type Source struct {
	browser  browser.Browser
	venueUrl string
	time     chrono.API
	tel      telemetry.API
}

func New(opts Options, browser browser.Browser, time chrono.API, tel telemetry.API) Source {
	assert.NotNil(browser)
	assert.NotNil(time)
	assert.NotNil(tel)

	venueUrl := opts.VenueUrl
	if venueUrl == "" {
		venueUrl = Cinema.Website
	}

	return Source{
		browser:  browser,
		venueUrl: venueUrl,
		time:     time,
		tel:      telemetry.NewScopedAPI("everyman", tel),
	}
}

func (s Source) Cinema() cinema.Cinema {
	return Cinema
}

type showtime struct {
	title string
	clock string
	url   string
}

// readShowtimes finds every h3 whose text ends in a certificate and pairs it
// with the purchase links of its nearest ancestor that has any.
func readShowtimes(page string, base *url.URL) ([]showtime, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, err
	}

	out := []showtime{}
	doc.Find("h3").Each(func(_ int, h3 *goquery.Selection) {
		text := htmlutil.Text(h3)
		if !textutil.GluedCertificate(text) {
			return
		}
		title := textutil.StripGluedCertificate(text)
		if title == "" {
			return
		}

		container := h3.Parent()
		for depth := 0; depth < maxAncestorDepth && container.Length() > 0; depth++ {
			links := container.Find(`a[href*="purchase"]`)
			if links.Length() > 0 {
				links.Each(func(_ int, a *goquery.Selection) {
					clock := strings.TrimSpace(a.AttrOr("aria-label", ""))
					if clock == "" {
						clock = htmlutil.Text(a)
					}
					out = append(out, showtime{
						title: title,
						clock: clock,
						url:   htmlutil.Resolve(base, a.AttrOr("href", "")),
					})
				})
				return
			}
			container = container.Parent()
		}
	})
	return out, nil
}

var clockRegex = regexp.MustCompile(`^(\d{1,2}):(\d{2})`)

func parseClock(text string) (hour, minute int, ok bool) {
	groups := clockRegex.FindStringSubmatch(strings.TrimSpace(text))
	if len(groups) != 3 {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(groups[1])
	minute, _ = strconv.Atoi(groups[2])
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// dateFor picks the civil date a clock time in the current view belongs to.
type dateFor func(hour, minute int) time.Time

func onDay(day time.Time) dateFor {
	day = timezone.ToLondon(day)
	return func(hour, minute int) time.Time {
		return timezone.Naive(day.Year(), day.Month(), day.Day(), hour, minute)
	}
}

// rollingDay is used for the multi-day view, which does not say which day a
// time is on: times already passed today are taken to be tomorrow.
func rollingDay(now time.Time) dateFor {
	today := onDay(now)
	tomorrow := onDay(now.AddDate(0, 0, 1))
	return func(hour, minute int) time.Time {
		start := today(hour, minute)
		if start.Before(now) {
			return tomorrow(hour, minute)
		}
		return start
	}
}

func (s Source) readView(ctx context.Context, tab browser.Session, base *url.URL, date dateFor, scrapedAt time.Time) ([]cinema.Screening, error) {
	page, err := tab.HTML(ctx)
	if err != nil {
		return nil, err
	}
	showtimes, err := readShowtimes(page, base)
	if err != nil {
		return nil, err
	}

	screenings := []cinema.Screening{}
	for _, st := range showtimes {
		hour, minute, ok := parseClock(st.clock)
		if !ok {
			continue
		}
		screenings = append(screenings, cinema.NewScreening(Cinema, st.title, date(hour, minute), st.url, scrapedAt))
	}
	return screenings, nil
}

// selectView clicks the date selector button matching one of `labels` and
// reads the resulting view, a missing button is not an error.
func (s Source) selectView(ctx context.Context, tab browser.Session, base *url.URL, date dateFor, scrapedAt time.Time, wait time.Duration, labels ...string) []cinema.Screening {
	found, err := tab.ClickButton(ctx, labels...)
	if err != nil {
		s.tel.ReportWarning(report_source_select_day, err, labels)
		return nil
	}
	if !found {
		s.tel.ReportDebug("date selector not found", labels)
		return nil
	}
	err = tab.Wait(ctx, wait)
	if err != nil {
		return nil
	}
	screenings, err := s.readView(ctx, tab, base, date, scrapedAt)
	if err != nil {
		s.tel.ReportWarning(report_source_read_view, err, labels)
		return nil
	}
	return screenings
}

func dedupeKey(s cinema.Screening) string {
	if s.BookingURL == "" || s.BookingURL == Cinema.Website {
		return fmt.Sprintf("%s|%s", s.FilmTitle, s.StartTime.Format(time.RFC3339))
	}
	return scrapeutil.NormalizeURL(s.BookingURL)
}

func (s Source) Scrape(ctx context.Context, daysAhead int) ([]cinema.Screening, error) {
	now := s.time.Now()
	window := cinema.NewWindow(now, daysAhead)

	base, err := url.Parse(s.venueUrl)
	if err != nil {
		return nil, err
	}

	tab, err := s.browser.NewSession(ctx, browser.SessionOptions{NavigationTimeout: time.Minute})
	if err != nil {
		s.tel.ReportBroken(report_source_navigate, err)
		return nil, fmt.Errorf("start browser: %w", err)
	}
	defer tab.Close()

	err = tab.Navigate(ctx, s.venueUrl)
	if err == nil {
		err = tab.Wait(ctx, 2*time.Second)
	}
	if err != nil {
		s.tel.ReportBroken(report_source_navigate, err)
		return nil, err
	}

	screenings, err := s.readView(ctx, tab, base, onDay(now), now)
	if err != nil {
		s.tel.ReportBroken(report_source_read_view, err)
		return nil, err
	}
	s.tel.ReportDebug("read today view", len(screenings))

	tomorrow := s.selectView(ctx, tab, base, onDay(now.AddDate(0, 0, 1)), now, 1500*time.Millisecond, "tomorrow")
	s.tel.ReportDebug("read tomorrow view", len(tomorrow))
	screenings = append(screenings, tomorrow...)

	week := s.selectView(ctx, tab, base, rollingDay(now), now, 2*time.Second, "7 days", "next")
	s.tel.ReportDebug("read week view", len(week))
	screenings = append(screenings, week...)

	screenings = cinema.Dedupe(screenings, dedupeKey)
	screenings = cinema.Finalize(Cinema, window, screenings)
	s.tel.ReportCount(report_source_screenings, int64(len(screenings)))
	return screenings, nil
}

func (s Source) Films(ctx context.Context) ([]cinema.Film, error) {
	screenings, err := s.Scrape(ctx, cinema.DefaultDaysAhead)
	if err != nil {
		return nil, err
	}
	return cinema.FilmsFromScreenings(screenings), nil
}
