// Package vue scrapes Vue Islington. The whats-on page fetches its showings
// from the myvue microservice API, the adapter loads the page in a browser
// and decodes the responses it observes.
package vue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"londoncinemas/internal/cinema"
	"londoncinemas/internal/components/assert"
	"londoncinemas/internal/components/chrono"
	"londoncinemas/internal/components/telemetry"
	"londoncinemas/lib/browser"
	"londoncinemas/lib/textutil"
	"londoncinemas/lib/timezone"
)

const (
	report_source_navigate      = "source.navigate"
	report_source_load_date     = "source.load-date"
	report_source_parse_session = "source.parse-session"
	report_source_screenings    = "source.screenings"
)

const (
	DefaultBaseUrl  = "https://www.myvue.com"
	DefaultCinemaID = "10032"
)

var ErrNoShowings = errors.New("vue: no showings response observed")

var Cinema = cinema.Cinema{
	ID:       "vue-islington",
	Name:     "Vue Islington",
	Area:     "Islington",
	Address:  "36 Parkfield Street, Islington",
	Postcode: "N1 0PS",
	Website:  "https://www.myvue.com/cinema/islington",
	Chain:    cinema.StrPtr("Vue"),
	Lat:      cinema.FloatPtr(51.5344),
	Lon:      cinema.FloatPtr(-0.1057),
}

// ignoredAttributes are session attributes too common to be worth a note.
var ignoredAttributes = map[string]bool{
	"AD":        true,
	"Lux":       true,
	"Strobe FX": true,
	"English":   true,
}

type Options struct {
	// BaseUrl defaults to DefaultBaseUrl.
	BaseUrl string
	// CinemaID is the microservice id of the venue, defaults to DefaultCinemaID.
	CinemaID string
}

type Source struct {
	browser  browser.Browser
	baseUrl  string
	cinemaId string
	time     chrono.API
	tel      telemetry.API
}

func New(opts Options, browser browser.Browser, time chrono.API, tel telemetry.API) Source {
	assert.NotNil(browser)
	assert.NotNil(time)
	assert.NotNil(tel)

	baseUrl := strings.TrimSuffix(opts.BaseUrl, "/")
	if baseUrl == "" {
		baseUrl = DefaultBaseUrl
	}
	cinemaId := opts.CinemaID
	if cinemaId == "" {
		cinemaId = DefaultCinemaID
	}

	return Source{
		browser:  browser,
		baseUrl:  baseUrl,
		cinemaId: cinemaId,
		time:     time,
		tel:      telemetry.NewScopedAPI("vue", tel),
	}
}

func (s Source) Cinema() cinema.Cinema {
	return Cinema
}

func (s Source) whatsOnUrl() string {
	return s.baseUrl + "/cinema/islington/whats-on"
}

func (s Source) isShowings(res browser.Response) bool {
	return res.Status == 200 && strings.Contains(res.URL, fmt.Sprintf("/cinemas/%s/films", s.cinemaId))
}

func (s Source) isShowingDates(res browser.Response) bool {
	return res.Status == 200 && strings.Contains(res.URL, "/showingDates") && strings.Contains(res.URL, s.cinemaId)
}

type attribute struct {
	ShortName string `json:"shortName"`
	Name      string `json:"name"`
}

type session struct {
	StartTime  string      `json:"startTime"`
	EndTime    string      `json:"endTime"`
	BookingUrl string      `json:"bookingUrl"`
	Attributes []attribute `json:"attributes"`
}

type film struct {
	FilmTitle     string `json:"filmTitle"`
	ShowingGroups []struct {
		Sessions []session `json:"sessions"`
	} `json:"showingGroups"`
}

type showingsResponse struct {
	Result []film `json:"result"`
}

type showingDatesResponse struct {
	Result []struct {
		Date string `json:"date"`
	} `json:"result"`
}

// observed holds the latest matching responses of a page load.
type observed struct {
	showings *showingsResponse
	dates    []string
}

func (s Source) observe(responses []browser.Response) observed {
	out := observed{}
	for _, res := range responses {
		switch {
		case s.isShowings(res) && len(res.Body) > 0:
			var body showingsResponse
			err := json.Unmarshal(res.Body, &body)
			if err != nil {
				continue
			}
			out.showings = &body
		case s.isShowingDates(res) && len(res.Body) > 0:
			var body showingDatesResponse
			err := json.Unmarshal(res.Body, &body)
			if err != nil {
				continue
			}
			out.dates = []string{}
			for _, d := range body.Result {
				if len(d.Date) >= len(time.DateOnly) {
					out.dates = append(out.dates, d.Date[:len(time.DateOnly)])
				}
			}
		}
	}
	return out
}

func (s Source) parseShowings(films []film, scrapedAt time.Time) []cinema.Screening {
	screenings := []cinema.Screening{}
	for _, f := range films {
		title := strings.TrimSpace(f.FilmTitle)
		if title == "" {
			continue
		}
		for _, group := range f.ShowingGroups {
			for _, sess := range group.Sessions {
				if sess.StartTime == "" {
					continue
				}
				start, err := timezone.Parse(sess.StartTime)
				if err != nil {
					s.tel.ReportWarning(report_source_parse_session, err, title)
					continue
				}

				booking := ""
				if sess.BookingUrl != "" {
					booking = s.baseUrl + sess.BookingUrl
				}
				screening := cinema.NewScreening(Cinema, title, start, booking, scrapedAt)
				if sess.EndTime != "" {
					end, err := timezone.Parse(sess.EndTime)
					if err == nil {
						screening = screening.WithEnd(end)
					}
				}

				notes := []string{}
				for _, attr := range sess.Attributes {
					if attr.ShortName != "" && !ignoredAttributes[attr.ShortName] {
						notes = append(notes, attr.ShortName)
					}
				}
				screening.Notes = cinema.StrPtr(textutil.JoinNotes(notes...))

				screenings = append(screenings, screening)
			}
		}
	}
	return screenings
}

func (s Source) load(ctx context.Context, tab browser.Session, url string, wait time.Duration) (observed, error) {
	tab.ResetResponses()
	err := tab.Navigate(ctx, url)
	if err != nil {
		return observed{}, err
	}
	err = tab.Wait(ctx, wait)
	if err != nil {
		return observed{}, err
	}
	return s.observe(tab.Responses()), nil
}

// sessionKey identifies a session by the last path segment of its booking url.
func sessionKey(s cinema.Screening) string {
	if s.BookingURL == Cinema.Website {
		return fmt.Sprintf("%s|%s", s.FilmTitle, s.StartTime.Format(time.RFC3339))
	}
	segments := strings.Split(strings.TrimSuffix(s.BookingURL, "/"), "/")
	return segments[len(segments)-1]
}

func (s Source) Scrape(ctx context.Context, daysAhead int) ([]cinema.Screening, error) {
	now := s.time.Now()
	window := cinema.NewWindow(now, daysAhead)
	if daysAhead <= 0 {
		daysAhead = cinema.DefaultDaysAhead
	}

	tab, err := s.browser.NewSession(ctx, browser.SessionOptions{
		Capture: func(res browser.Response) bool {
			return s.isShowings(res) || s.isShowingDates(res)
		},
		NavigationTimeout: time.Minute,
	})
	if err != nil {
		s.tel.ReportBroken(report_source_navigate, err)
		return nil, fmt.Errorf("start browser: %w", err)
	}
	defer tab.Close()

	first, err := s.load(ctx, tab, s.whatsOnUrl(), 3*time.Second)
	if err != nil {
		s.tel.ReportBroken(report_source_navigate, err)
		return nil, err
	}
	if first.showings == nil {
		s.tel.ReportBroken(report_source_navigate, ErrNoShowings)
		return nil, ErrNoShowings
	}
	screenings := s.parseShowings(first.showings.Result, now)

	// the first showing date is the one the page opened on
	if len(first.dates) > 1 {
		last := min(daysAhead, len(first.dates))
		for _, date := range first.dates[1:last] {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			page, err := s.load(ctx, tab, fmt.Sprintf("%s?date=%s", s.whatsOnUrl(), date), 1500*time.Millisecond)
			if err != nil {
				s.tel.ReportWarning(report_source_load_date, err, date)
				continue
			}
			if page.showings == nil {
				s.tel.ReportDebug("no showings observed", date)
				continue
			}
			screenings = append(screenings, s.parseShowings(page.showings.Result, now)...)
		}
	}

	screenings = cinema.Dedupe(screenings, sessionKey)
	screenings = cinema.Finalize(Cinema, window, screenings)
	s.tel.ReportCount(report_source_screenings, int64(len(screenings)))
	return screenings, nil
}

func (s Source) Films(ctx context.Context) ([]cinema.Film, error) {
	screenings, err := s.Scrape(ctx, 7)
	if err != nil {
		return nil, err
	}
	return cinema.FilmsFromScreenings(screenings), nil
}
