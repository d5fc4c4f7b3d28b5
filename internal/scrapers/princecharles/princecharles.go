// Package princecharles scrapes the Prince Charles Cinema, whose What's On
// page is server rendered by the jacro wordpress plugin.
package princecharles

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
	report_source_fetch         = "source.fetch"
	report_source_parse_heading = "source.parse-heading"
	report_source_parse_time    = "source.parse-time"
	report_source_screenings    = "source.screenings"
)

var Cinema = cinema.Cinema{
	ID:       "prince-charles-cinema",
	Name:     "Prince Charles Cinema",
	Area:     "Leicester Square",
	Address:  "7 Leicester Place",
	Postcode: "WC2H 7BY",
	Website:  "https://princecharlescinema.com/",
	Lat:      cinema.FloatPtr(51.5112),
	Lon:      cinema.FloatPtr(-0.1304),
}

// formatTags normalizes the performance tags and li classes the site uses.
var formatTags = map[string]string{
	"4k":     "4K",
	"35mm":   "35mm",
	"70mm":   "70mm",
	"sub":    "Subtitled",
	"dub":    "Dubbed",
	"intro":  "Intro",
	"qa":     "Q&A",
	"£1 mem": "£1 Members",
	"sing":   "Sing-Along",
}

var certificates = map[string]bool{
	"U": true, "PG": true, "12": true, "12A": true, "15": true, "18": true, "R18": true, "TBC": true,
}

type Options struct {
	// BaseUrl defaults to the venue website.
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

	tel = telemetry.NewScopedAPI("princecharles", tel)

	base := opts.BaseUrl
	if base == "" {
		base = Cinema.Website
	}
	baseUrl, err := url.Parse(strings.TrimSuffix(base, "/") + "/")
	if err != nil {
		panic(err)
	}

	client := scrapeutil.NewClient(scrapeutil.ClientOptions{
		BaseUrl:          strings.TrimSuffix(base, "/"),
		CloudflareBypass: true,
		Headers: map[string]string{
			"accept": "text/html,application/xhtml+xml",
		},
		Dump:       opts.Dump,
		DumpPrefix: "princecharles",
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

func (s Source) fetchWhatsOn(ctx context.Context) (*goquery.Document, error) {
	res, err := s.http.R().
		SetContext(ctx).
		Get("/whats-on/")
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

var (
	yearRegex    = regexp.MustCompile(`^\d{4}$`)
	runtimeRegex = regexp.MustCompile(`^(\d+)`)
)

func parseFilm(block *goquery.Selection) (cinema.Film, bool) {
	title := htmlutil.Text(block.Find("a.liveeventtitle").First())
	if title == "" {
		return cinema.Film{}, false
	}

	film := cinema.Film{Title: title}

	block.Find("div.running-time span").Each(func(_ int, span *goquery.Selection) {
		text := htmlutil.Text(span)
		switch {
		case yearRegex.MatchString(text):
			year, _ := strconv.Atoi(text)
			film.Year = cinema.IntPtr(year)
		case strings.Contains(strings.ToLower(text), "min"):
			groups := runtimeRegex.FindStringSubmatch(text)
			if len(groups) == 2 {
				runtime, _ := strconv.Atoi(groups[1])
				film.RuntimeMins = cinema.IntPtr(runtime)
			}
		case strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")"):
			// anything else in parentheses is a country or genre
			cert := strings.Trim(text, "()")
			if certificates[cert] {
				film.Certificate = cinema.StrPtr(cert)
			}
		}
	})

	block.Find("div.film-info span").Each(func(_ int, span *goquery.Selection) {
		text := htmlutil.Text(span)
		if strings.HasPrefix(text, "Directed by") {
			film.Director = cinema.StrPtr(strings.TrimSpace(strings.TrimPrefix(text, "Directed by")))
		}
	})

	paragraphs := []string{}
	block.Find("div.jacro-formatted-text p").Each(func(_ int, p *goquery.Selection) {
		text := htmlutil.Text(p)
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	film.Synopsis = cinema.StrPtr(strings.Join(paragraphs, " "))

	return film, true
}

var headingRegex = regexp.MustCompile(`(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]+)`)

// parseHeading reads a date heading such as "Friday 26th December". The
// heading has no year: months well before the current one belong to next year.
func parseHeading(text string, now time.Time) (time.Time, error) {
	groups := headingRegex.FindStringSubmatch(text)
	if len(groups) < 3 {
		return time.Time{}, fmt.Errorf("unrecognized date heading %q", text)
	}
	now = timezone.ToLondon(now)
	parsed, err := time.ParseInLocation(
		"2 January 2006",
		fmt.Sprintf("%s %s %d", groups[1], groups[2], now.Year()),
		timezone.Location,
	)
	if err != nil {
		return time.Time{}, err
	}
	if int(parsed.Month()) < int(now.Month())-1 {
		parsed = parsed.AddDate(1, 0, 0)
	}
	return parsed, nil
}

// parseTime combines a clock time such as "2:30 pm" with `date`.
func parseTime(text string, date time.Time) (time.Time, error) {
	text = strings.ToLower(strings.ReplaceAll(text, " ", ""))
	clock, err := time.Parse("3:04pm", text)
	if err != nil {
		return time.Time{}, err
	}
	return timezone.Naive(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute()), nil
}

func performanceTags(li *goquery.Selection) []string {
	tags := []string{}
	add := func(tag string) {
		for _, existing := range tags {
			if existing == tag {
				return
			}
		}
		tags = append(tags, tag)
	}

	li.Find("div.movietag span.tag").Each(func(_ int, tag *goquery.Selection) {
		text := htmlutil.Text(tag)
		if normalized, ok := formatTags[strings.ToLower(text)]; ok {
			add(normalized)
		} else if text != "" {
			add(text)
		}
	})
	for _, class := range strings.Fields(li.AttrOr("class", "")) {
		if normalized, ok := formatTags[strings.ToLower(class)]; ok {
			add(normalized)
		}
	}
	return tags
}

func (s Source) parsePerformances(block *goquery.Selection, film cinema.Film, now time.Time) []cinema.Screening {
	screenings := []cinema.Screening{}

	var current time.Time
	block.Find("div.performance-list-items-outer").First().Find("div, li, ul").Each(func(_ int, el *goquery.Selection) {
		if el.HasClass("heading") {
			date, err := parseHeading(htmlutil.Text(el), now)
			if err != nil {
				s.tel.ReportWarning(report_source_parse_heading, err, film.Title)
				current = time.Time{}
				return
			}
			current = date
			return
		}
		if goquery.NodeName(el) != "li" || current.IsZero() {
			return
		}

		button := el.Find("a.film_book_button").First()
		timeText := htmlutil.Text(button.Find("span.time").First())
		if button.Length() == 0 || timeText == "" {
			return
		}

		start, err := parseTime(timeText, current)
		if err != nil {
			s.tel.ReportWarning(report_source_parse_time, err, film.Title)
			return
		}

		booking := htmlutil.Resolve(s.baseUrl, button.AttrOr("href", ""))
		screening := cinema.NewScreening(Cinema, film.Title, start, booking, now)
		if film.RuntimeMins != nil {
			screening = screening.WithEnd(start.Add(time.Duration(*film.RuntimeMins) * time.Minute))
		}

		notes := performanceTags(el)
		if strings.Contains(el.AttrOr("class", ""), "soldfilm_book_button") {
			notes = append(notes, "Sold Out")
		}
		screening.Notes = cinema.StrPtr(textutil.JoinNotes(notes...))

		screenings = append(screenings, screening)
	})

	return screenings
}

func (s Source) Scrape(ctx context.Context, daysAhead int) ([]cinema.Screening, error) {
	now := s.time.Now()
	window := cinema.NewWindow(now, daysAhead)

	doc, err := s.fetchWhatsOn(ctx)
	if err != nil {
		s.tel.ReportBroken(report_source_fetch, err)
		return nil, err
	}

	screenings := []cinema.Screening{}
	doc.Find("div.film_list-outer").Each(func(_ int, block *goquery.Selection) {
		film, ok := parseFilm(block)
		if !ok {
			return
		}
		screenings = append(screenings, s.parsePerformances(block, film, now)...)
	})

	screenings = cinema.Finalize(Cinema, window, screenings)
	s.tel.ReportCount(report_source_screenings, int64(len(screenings)))
	return screenings, nil
}

func (s Source) Films(ctx context.Context) ([]cinema.Film, error) {
	doc, err := s.fetchWhatsOn(ctx)
	if err != nil {
		s.tel.ReportBroken(report_source_fetch, err)
		return nil, err
	}

	seen := map[string]bool{}
	films := []cinema.Film{}
	doc.Find("div.film_list-outer").Each(func(_ int, block *goquery.Selection) {
		film, ok := parseFilm(block)
		if !ok || seen[film.Title] {
			return
		}
		seen[film.Title] = true
		films = append(films, film)
	})
	return films, nil
}
