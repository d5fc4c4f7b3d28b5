// Package curzon scrapes Curzon venues through the Vista OCAPI the curzon.com
// frontend uses. The API needs a bearer token that only the frontend's own
// session mints, so a browser loads the venue page once to observe it.
package curzon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"londoncinemas/internal/cinema"
	"londoncinemas/internal/components/assert"
	"londoncinemas/internal/components/chrono"
	"londoncinemas/internal/components/telemetry"
	"londoncinemas/internal/scrapers/scrapeutil"
	"londoncinemas/lib/browser"
	"londoncinemas/lib/restyutil"
	"londoncinemas/lib/timezone"

	"github.com/go-resty/resty/v2"
)

const (
	report_source_acquire_token  = "source.acquire-token"
	report_source_fetch_films    = "source.fetch-films"
	report_source_fetch_dates    = "source.fetch-dates"
	report_source_fetch_showtime = "source.fetch-showtimes"
	report_source_parse_showtime = "source.parse-showtime"
	report_source_screenings     = "source.screenings"
)

const (
	DefaultApiUrl = "https://vwc.curzon.com/WSVistaWebClient/ocapi/v1"
	webUrl        = "https://www.curzon.com"
	// tokenHost is the host whose requests carry the bearer token.
	tokenHost = "vwc.curzon.com"
)

var ErrNoToken = errors.New("curzon: no bearer token observed")

// SiteIDs maps venue slugs to Vista site ids.
var SiteIDs = map[string]string{
	"hoxton":     "HOX1",
	"soho":       "SOH1",
	"mayfair":    "MAY1",
	"victoria":   "VIC1",
	"bloomsbury": "BLO1",
	"aldgate":    "ALD1",
	"kingston":   "KIN1",
	"wimbledon":  "WIM1",
	"oxford":     "OXF1",
	"sheffield":  "SHE1",
	"colchester": "COL1",
	"canterbury": "CNT1",
}

var Hoxton = cinema.Cinema{
	ID:       "curzon-hoxton",
	Name:     "Curzon Hoxton",
	Area:     "Hoxton",
	Address:  "58-60 Hoxton Square",
	Postcode: "N1 6PB",
	Website:  "https://www.curzon.com/venues/hoxton/",
	Chain:    cinema.StrPtr("Curzon"),
	Lat:      cinema.FloatPtr(51.5285),
	Lon:      cinema.FloatPtr(-0.0815),
}

// VenueCinema returns the descriptor for a Curzon venue slug, venues other
// than Hoxton get a generic descriptor.
func VenueCinema(venue string) cinema.Cinema {
	if venue == "" || venue == "hoxton" {
		return Hoxton
	}
	return cinema.Cinema{
		ID:      "curzon-" + venue,
		Name:    "Curzon " + strings.ToUpper(venue[:1]) + venue[1:],
		Website: fmt.Sprintf("%s/venues/%s/", webUrl, venue),
		Chain:   cinema.StrPtr("Curzon"),
	}
}

type Options struct {
	// Venue is the curzon.com venue slug, defaults to hoxton.
	Venue string
	// ApiUrl defaults to DefaultApiUrl.
	ApiUrl string
	// Interval is the pause between per-date requests, defaults to 200ms.
	Interval time.Duration
	Dump     restyutil.Output
}

type Source struct {
	http    *resty.Client
	browser browser.Browser
	venue   string
	siteId  string
	cinema  cinema.Cinema
	time    chrono.API
	tel     telemetry.API
}

func New(opts Options, browser browser.Browser, clock chrono.API, tel telemetry.API) Source {
	assert.NotNil(browser)
	assert.NotNil(clock)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("curzon", tel)

	venue := opts.Venue
	if venue == "" {
		venue = "hoxton"
	}
	siteId, ok := SiteIDs[venue]
	if !ok {
		siteId = SiteIDs["hoxton"]
	}
	apiUrl := opts.ApiUrl
	if apiUrl == "" {
		apiUrl = DefaultApiUrl
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	client := scrapeutil.NewClient(scrapeutil.ClientOptions{
		BaseUrl:  strings.TrimSuffix(apiUrl, "/"),
		Interval: interval,
		Headers: map[string]string{
			"accept":  "application/json",
			"origin":  webUrl,
			"referer": fmt.Sprintf("%s/venues/%s/", webUrl, venue),
		},
		Dump:       opts.Dump,
		DumpPrefix: "curzon",
	}, tel)

	return Source{
		http:    client,
		browser: browser,
		venue:   venue,
		siteId:  siteId,
		cinema:  VenueCinema(venue),
		time:    clock,
		tel:     tel,
	}
}

func (s Source) Cinema() cinema.Cinema {
	return s.cinema
}

type textField struct {
	Text string `json:"text"`
}

type film struct {
	ID               string             `json:"id"`
	Title            textField          `json:"title"`
	RuntimeInMinutes scrapeutil.FlexInt `json:"runtimeInMinutes"`
	Synopsis         textField          `json:"synopsis"`
	ReleaseDate      string             `json:"releaseDate"`
	CensorRatingID   string             `json:"censorRatingId"`
}

type filmsResponse struct {
	Films []film `json:"films"`
}

// session is the per-call state: the token and a film-id keyed catalog.
type session struct {
	token string
	films map[string]film
}

func (s *session) addFilms(films []film) {
	for _, f := range films {
		if f.ID == "" {
			continue
		}
		s.films[f.ID] = f
	}
}

func isTokenResponse(res browser.Response) bool {
	parsed, err := url.Parse(res.URL)
	return err == nil && parsed.Host == tokenHost && res.Status == 200
}

func isFilmsResponse(res browser.Response) bool {
	return isTokenResponse(res) &&
		strings.Contains(res.URL, "/films") &&
		!strings.Contains(res.URL, "availability")
}

// acquireSession loads the venue page in a browser and keeps the bearer
// token (and film catalog, if the page requested one) its requests carry.
func (s Source) acquireSession(ctx context.Context) (*session, error) {
	tab, err := s.browser.NewSession(ctx, browser.SessionOptions{
		Capture:           isFilmsResponse,
		NavigationTimeout: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	defer tab.Close()

	err = tab.Navigate(ctx, s.cinema.Website)
	if err != nil {
		return nil, err
	}
	err = tab.Wait(ctx, 3*time.Second)
	if err != nil {
		return nil, err
	}

	out := &session{films: map[string]film{}}
	for _, res := range tab.Responses() {
		if !isTokenResponse(res) {
			continue
		}
		auth := res.Header("authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			out.token = auth
		}
		if len(res.Body) > 0 && isFilmsResponse(res) {
			var body filmsResponse
			err := json.Unmarshal(res.Body, &body)
			if err != nil {
				s.tel.ReportWarning(report_source_fetch_films, fmt.Errorf("decode observed films: %w", err))
				continue
			}
			out.addFilms(body.Films)
		}
	}

	if out.token == "" {
		return nil, ErrNoToken
	}
	s.tel.ReportDebug("observed films", len(out.films))
	return out, nil
}

func (s Source) request(ctx context.Context, sess *session) *resty.Request {
	return s.http.R().
		SetContext(ctx).
		SetHeader("authorization", sess.token)
}

func (s Source) fetchFilms(ctx context.Context, sess *session) error {
	var body filmsResponse
	res, err := s.request(ctx, sess).
		SetResult(&body).
		Get("/films")
	if err != nil {
		return fmt.Errorf("fetch films: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("fetch films: unexpected status %s", res.Status())
	}
	sess.addFilms(body.Films)
	return nil
}

// businessDate accepts both "2025-12-26" and {"businessDate": "2025-12-26T00:00:00"}.
type businessDate string

func (d *businessDate) UnmarshalJSON(data []byte) error {
	var text string
	err := json.Unmarshal(data, &text)
	if err != nil {
		var obj struct {
			BusinessDate string `json:"businessDate"`
		}
		err = json.Unmarshal(data, &obj)
		if err != nil {
			return err
		}
		text = obj.BusinessDate
	}
	if len(text) > len(time.DateOnly) {
		text = text[:len(time.DateOnly)]
	}
	*d = businessDate(text)
	return nil
}

func (s Source) fetchBusinessDates(ctx context.Context, sess *session) ([]string, error) {
	var body struct {
		BusinessDates []businessDate `json:"businessDates"`
	}
	res, err := s.request(ctx, sess).
		SetQueryParam("siteIds", s.siteId).
		SetResult(&body).
		Get("/film-screening-dates")
	if err != nil {
		return nil, fmt.Errorf("fetch screening dates: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("fetch screening dates: unexpected status %s", res.Status())
	}

	out := []string{}
	for _, d := range body.BusinessDates {
		if d == "" {
			continue
		}
		out = append(out, string(d))
	}
	return out, nil
}

// businessDates returns the dates to fetch showtimes for: the dates the API
// lists within the window, or every date of the window if it lists none.
func (s Source) businessDates(ctx context.Context, sess *session, window cinema.Window) []string {
	listed, err := s.fetchBusinessDates(ctx, sess)
	if err != nil {
		s.tel.ReportWarning(report_source_fetch_dates, err)
	}

	dates := []string{}
	for _, d := range listed {
		parsed, err := time.ParseInLocation(time.DateOnly, d, timezone.Location)
		if err != nil || !window.Contains(parsed) {
			continue
		}
		dates = append(dates, d)
	}
	if len(dates) > 0 {
		return dates
	}

	s.tel.ReportDebug("falling back to window dates")
	for _, d := range window.Dates() {
		dates = append(dates, d.Format(time.DateOnly))
	}
	return dates
}

type showtime struct {
	ID       string `json:"id"`
	FilmID   string `json:"filmId"`
	ScreenID string `json:"screenId"`
	Schedule struct {
		StartsAt     string `json:"startsAt"`
		EndsAt       string `json:"endsAt"`
		FilmStartsAt string `json:"filmStartsAt"`
	} `json:"schedule"`
	Requires3dGlasses bool `json:"requires3dGlasses"`
	IsSoldOut         bool `json:"isSoldOut"`
}

func (s Source) fetchShowtimes(ctx context.Context, sess *session, date string) ([]showtime, error) {
	var body struct {
		Showtimes []showtime `json:"showtimes"`
	}
	res, err := s.request(ctx, sess).
		SetPathParam("date", date).
		SetQueryParam("siteIds", s.siteId).
		SetResult(&body).
		Get("/showtimes/by-business-date/{date}")
	if err != nil {
		return nil, fmt.Errorf("fetch showtimes: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("fetch showtimes: unexpected status %s", res.Status())
	}
	return body.Showtimes, nil
}

func (s Source) toScreening(sess *session, st showtime, scrapedAt time.Time) (cinema.Screening, error) {
	if st.Schedule.StartsAt == "" {
		return cinema.Screening{}, fmt.Errorf("showtime %s has no start", st.ID)
	}
	startValue := st.Schedule.FilmStartsAt
	if startValue == "" {
		startValue = st.Schedule.StartsAt
	}
	start, err := timezone.Parse(startValue)
	if err != nil {
		return cinema.Screening{}, err
	}

	title := fmt.Sprintf("Unknown (%s)", st.FilmID)
	if f, ok := sess.films[st.FilmID]; ok && strings.TrimSpace(f.Title.Text) != "" {
		title = strings.TrimSpace(f.Title.Text)
	}

	booking := ""
	if st.ID != "" {
		booking = fmt.Sprintf("%s/booking/%s", webUrl, st.ID)
	}

	screening := cinema.NewScreening(s.cinema, title, start, booking, scrapedAt)
	if st.Schedule.EndsAt != "" {
		end, err := timezone.Parse(st.Schedule.EndsAt)
		if err == nil {
			screening = screening.WithEnd(end)
		}
	}
	if st.ScreenID != "" {
		screening.Screen = cinema.StrPtr(strings.Replace(st.ScreenID, s.siteId+"-", "Screen ", 1))
	}

	notes := []string{}
	if st.Requires3dGlasses {
		notes = append(notes, "3D")
	}
	if st.IsSoldOut {
		notes = append(notes, "Sold Out")
	}
	screening.Notes = cinema.StrPtr(strings.Join(notes, "; "))
	return screening, nil
}

func (s Source) Scrape(ctx context.Context, daysAhead int) ([]cinema.Screening, error) {
	now := s.time.Now()
	window := cinema.NewWindow(now, daysAhead)

	sess, err := s.acquireSession(ctx)
	if err != nil {
		s.tel.ReportBroken(report_source_acquire_token, err)
		return nil, err
	}

	if len(sess.films) == 0 {
		err = s.fetchFilms(ctx, sess)
		if err != nil {
			s.tel.ReportWarning(report_source_fetch_films, err)
		}
	}

	screenings := []cinema.Screening{}
	for _, date := range s.businessDates(ctx, sess, window) {
		showtimes, err := s.fetchShowtimes(ctx, sess, date)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.tel.ReportWarning(report_source_fetch_showtime, err, date)
			continue
		}
		for _, st := range showtimes {
			screening, err := s.toScreening(sess, st, now)
			if err != nil {
				s.tel.ReportWarning(report_source_parse_showtime, err)
				continue
			}
			screenings = append(screenings, screening)
		}
	}

	screenings = cinema.Finalize(s.cinema, window, screenings)
	s.tel.ReportCount(report_source_screenings, int64(len(screenings)))
	return screenings, nil
}

func releaseYear(releaseDate string) int {
	if len(releaseDate) < 4 {
		return 0
	}
	parsed, err := time.Parse("2006", releaseDate[:4])
	if err != nil {
		return 0
	}
	return parsed.Year()
}

func (s Source) Films(ctx context.Context) ([]cinema.Film, error) {
	sess, err := s.acquireSession(ctx)
	if err != nil {
		s.tel.ReportBroken(report_source_acquire_token, err)
		return nil, err
	}
	if len(sess.films) == 0 {
		err = s.fetchFilms(ctx, sess)
		if err != nil {
			s.tel.ReportBroken(report_source_fetch_films, err)
			return nil, err
		}
	}

	films := []cinema.Film{}
	for _, f := range sess.films {
		title := strings.TrimSpace(f.Title.Text)
		if title == "" {
			continue
		}
		films = append(films, cinema.Film{
			Title:       title,
			Year:        cinema.IntPtr(releaseYear(f.ReleaseDate)),
			RuntimeMins: cinema.IntPtr(int(f.RuntimeInMinutes)),
			Synopsis:    cinema.StrPtr(strings.TrimSpace(f.Synopsis.Text)),
		})
	}
	cinema.SortFilms(films)
	return films, nil
}
