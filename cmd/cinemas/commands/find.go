package commands

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"londoncinemas/internal/cinema"
	"londoncinemas/lib/serviceutil"
	"londoncinemas/lib/timezone"

	"github.com/antzucaro/matchr"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	findThreshold *float64
	findLimit     *int
)

func init() {
	findThreshold = findCmd.Flags().Float64("threshold", 0.85, "The minimum Jaro-Winkler similarity of a match.")
	findLimit = findCmd.Flags().Int("limit", 10, "The maximum number of films to show.")
	rootCmd.AddCommand(findCmd)
}

type titleMatch struct {
	title string
	score float64
}

// rankTitles scores every distinct title against `query`. A title
// containing the query outright scores 1.
func rankTitles(query string, titles []string, threshold float64) []titleMatch {
	query = strings.ToLower(strings.TrimSpace(query))
	out := []titleMatch{}
	for _, title := range titles {
		lower := strings.ToLower(title)
		score := matchr.JaroWinkler(query, lower, false)
		if strings.Contains(lower, query) {
			score = 1
		}
		if score >= threshold {
			out = append(out, titleMatch{title: title, score: score})
		}
	}
	slices.SortStableFunc(out, func(a, b titleMatch) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return strings.Compare(a.title, b.title)
	})
	return out
}

func distinctTitles(screenings []cinema.Screening) []string {
	out := []string{}
	for _, f := range cinema.FilmsFromScreenings(screenings) {
		out = append(out, f.Title)
	}
	return out
}

// nextShowings returns up to `n` screenings of `title` starting at or after
// `now`, `screenings` must be sorted by start.
func nextShowings(screenings []cinema.Screening, title string, now time.Time, n int) []cinema.Screening {
	out := []cinema.Screening{}
	for _, s := range screenings {
		if len(out) >= n {
			break
		}
		if s.FilmTitle == title && !s.StartTime.Before(now) {
			out = append(out, s)
		}
	}
	return out
}

var findCmd = &cobra.Command{
	Use:   "find <title>",
	Short: "Fuzzy searches the snapshot for a film and prints its next showings.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		a, err := newApp(cfg)
		if err != nil {
			serviceutil.Fatal("failed to initialize venues", err)
		}

		screenings := a.store.Load().Screenings
		matches := rankTitles(strings.Join(args, " "), distinctTitles(screenings), *findThreshold)
		if len(matches) == 0 {
			fmt.Println("No matching films.")
			return
		}
		if len(matches) > *findLimit {
			matches = matches[:*findLimit]
		}

		now := a.time.Now()
		t := newTable()
		t.AppendHeader(table.Row{"Film", "Score", "Next showings"})
		for _, m := range matches {
			showings := []string{}
			for _, s := range nextShowings(screenings, m.title, now, 3) {
				showings = append(showings, fmt.Sprintf(
					"%s, %s",
					timezone.ToLondon(s.StartTime).Format("Mon 02 Jan 15:04"),
					s.CinemaName,
				))
			}
			t.AppendRow(table.Row{m.title, fmt.Sprintf("%.2f", m.score), strings.Join(showings, "\n")})
		}
		t.Render()
	},
}
