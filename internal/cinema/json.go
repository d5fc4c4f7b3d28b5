package cinema

import (
	"encoding/json"
	"fmt"
	"time"

	"londoncinemas/lib/timezone"
)

// jsonLayout always renders the numeric offset, so winter times read
// "+00:00" rather than "Z".
const jsonLayout = "2006-01-02T15:04:05.999999-07:00"

type screeningJSON struct {
	CinemaID   string  `json:"cinema_id"`
	CinemaName string  `json:"cinema_name"`
	FilmTitle  string  `json:"film_title"`
	StartTime  string  `json:"start_time"`
	BookingURL string  `json:"booking_url"`
	Format     *string `json:"format"`
	Screen     *string `json:"screen"`
	EndTime    *string `json:"end_time"`
	Notes      *string `json:"notes"`
	ScrapedAt  string  `json:"scraped_at"`
}

// FormatTime renders `t` the way every timestamp in the snapshot is written:
// London wall clock with a numeric offset.
func FormatTime(t time.Time) string {
	return timezone.ToLondon(t).Format(jsonLayout)
}

func (s Screening) MarshalJSON() ([]byte, error) {
	out := screeningJSON{
		CinemaID:   s.CinemaID,
		CinemaName: s.CinemaName,
		FilmTitle:  s.FilmTitle,
		StartTime:  FormatTime(s.StartTime),
		BookingURL: s.BookingURL,
		Format:     s.Format,
		Screen:     s.Screen,
		Notes:      s.Notes,
		ScrapedAt:  FormatTime(s.ScrapedAt),
	}
	if s.EndTime != nil {
		end := FormatTime(*s.EndTime)
		out.EndTime = &end
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts both offset-aware and naive timestamps, naive ones
// are read as London wall clock.
func (s *Screening) UnmarshalJSON(data []byte) error {
	var in screeningJSON
	err := json.Unmarshal(data, &in)
	if err != nil {
		return err
	}

	start, err := timezone.Parse(in.StartTime)
	if err != nil {
		return fmt.Errorf("start_time: %w", err)
	}

	*s = Screening{
		CinemaID:   in.CinemaID,
		CinemaName: in.CinemaName,
		FilmTitle:  in.FilmTitle,
		StartTime:  start,
		BookingURL: in.BookingURL,
		Format:     in.Format,
		Screen:     in.Screen,
		Notes:      in.Notes,
	}
	if in.EndTime != nil && *in.EndTime != "" {
		end, err := timezone.Parse(*in.EndTime)
		if err != nil {
			return fmt.Errorf("end_time: %w", err)
		}
		s.EndTime = &end
	}
	if in.ScrapedAt != "" {
		scrapedAt, err := timezone.Parse(in.ScrapedAt)
		if err != nil {
			return fmt.Errorf("scraped_at: %w", err)
		}
		s.ScrapedAt = scrapedAt
	}
	return nil
}
