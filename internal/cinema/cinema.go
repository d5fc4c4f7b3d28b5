// Package cinema holds the records every source adapter normalizes into and
// the helpers they share to do so.
package cinema

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"londoncinemas/lib/timezone"
)

// Cinema is a static venue descriptor.
type Cinema struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Area     string   `json:"area,omitempty"`
	Address  string   `json:"address"`
	Postcode string   `json:"postcode"`
	Website  string   `json:"website"`
	Chain    *string  `json:"chain"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
}

// Film is the film-level information a venue publishes, every field but
// Title is optional.
type Film struct {
	Title       string  `json:"title"`
	Year        *int    `json:"year"`
	Director    *string `json:"director"`
	RuntimeMins *int    `json:"runtime_mins"`
	Certificate *string `json:"certificate"`
	Synopsis    *string `json:"synopsis"`
}

// Screening is one scheduled showing of one film at one venue.
type Screening struct {
	CinemaID   string     `json:"cinema_id"`
	CinemaName string     `json:"cinema_name"`
	FilmTitle  string     `json:"film_title"`
	StartTime  time.Time  `json:"start_time"`
	BookingURL string     `json:"booking_url"`
	Format     *string    `json:"format"`
	Screen     *string    `json:"screen"`
	EndTime    *time.Time `json:"end_time"`
	Notes      *string    `json:"notes"`
	ScrapedAt  time.Time  `json:"scraped_at"`
}

// isoLayout matches the ISO-8601 rendering used for hashing, second
// precision with a numeric offset.
const isoLayout = "2006-01-02T15:04:05-07:00"

// ID is the content hash that identifies a screening: two screenings with the
// same cinema, title and start time are the same screening.
func (s Screening) ID() string {
	start := timezone.ToLondon(s.StartTime)
	key := fmt.Sprintf("%s:%s:%s", s.CinemaID, s.FilmTitle, start.Format(isoLayout))
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// NewScreening builds a screening for `c`, converting `start` to London time
// and falling back to the venue website when `bookingUrl` is empty.
func NewScreening(c Cinema, title string, start time.Time, bookingUrl string, scrapedAt time.Time) Screening {
	bookingUrl = strings.TrimSpace(bookingUrl)
	if bookingUrl == "" {
		bookingUrl = c.Website
	}
	return Screening{
		CinemaID:   c.ID,
		CinemaName: c.Name,
		FilmTitle:  strings.TrimSpace(title),
		StartTime:  timezone.ToLondon(start),
		BookingURL: bookingUrl,
		ScrapedAt:  timezone.ToLondon(scrapedAt),
	}
}

// WithEnd sets the end time, converted to London time.
func (s Screening) WithEnd(end time.Time) Screening {
	if end.IsZero() {
		return s
	}
	end = timezone.ToLondon(end)
	s.EndTime = &end
	return s
}

// Normalize enforces the invariants every adapter output must hold: London
// zoned times and a non-empty booking url.
func (s Screening) Normalize(c Cinema) Screening {
	s.StartTime = timezone.ToLondon(s.StartTime)
	if s.EndTime != nil {
		end := timezone.ToLondon(*s.EndTime)
		s.EndTime = &end
	}
	if !s.ScrapedAt.IsZero() {
		s.ScrapedAt = timezone.ToLondon(s.ScrapedAt)
	}
	if strings.TrimSpace(s.BookingURL) == "" {
		s.BookingURL = c.Website
	}
	return s
}

func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func IntPtr(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func FloatPtr(f float64) *float64 {
	return &f
}
