package commands

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"londoncinemas/internal/cinema"
	"londoncinemas/internal/snapshot"
	"londoncinemas/lib/geo"
	"londoncinemas/lib/serviceutil"
	"londoncinemas/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	listingsCinema   *string
	listingsDays     *int
	listingsPostcode *string
	listingsLive     *bool
)

func init() {
	listingsCinema = listingsCmd.Flags().String("cinema", "", "Only show this cinema id.")
	listingsDays = listingsCmd.Flags().Int("days", 1, "How many days to show, starting today.")
	listingsPostcode = listingsCmd.Flags().String("postcode", "", "Order cinemas by distance from this UK postcode.")
	listingsLive = listingsCmd.Flags().Bool("live", false, "Scrape --cinema now instead of reading the snapshot.")
	rootCmd.AddCommand(listingsCmd)
}

type venueListing struct {
	cinema     cinema.Cinema
	distance   *float64
	screenings []cinema.Screening
}

// groupByCinema keeps the order of `cinemas` and drops venues without
// screenings.
func groupByCinema(cinemas []cinema.Cinema, screenings []cinema.Screening) []venueListing {
	out := []venueListing{}
	for _, c := range cinemas {
		listing := venueListing{cinema: c}
		for _, s := range screenings {
			if s.CinemaID == c.ID {
				listing.screenings = append(listing.screenings, s)
			}
		}
		if len(listing.screenings) > 0 {
			out = append(out, listing)
		}
	}
	return out
}

// sortByDistance orders listings nearest first, venues without coordinates
// go last.
func sortByDistance(listings []venueListing, lat, lon float64) {
	for i, l := range listings {
		if l.cinema.Lat == nil || l.cinema.Lon == nil {
			continue
		}
		d := geo.Haversine(lat, lon, *l.cinema.Lat, *l.cinema.Lon)
		listings[i].distance = &d
	}
	slices.SortStableFunc(listings, func(a, b venueListing) int {
		switch {
		case a.distance == nil && b.distance == nil:
			return 0
		case a.distance == nil:
			return 1
		case b.distance == nil:
			return -1
		case *a.distance < *b.distance:
			return -1
		case *a.distance > *b.distance:
			return 1
		}
		return 0
	})
}

func inDays(screenings []cinema.Screening, now time.Time, days int) []cinema.Screening {
	window := cinema.NewWindow(now, days)
	out := []cinema.Screening{}
	for _, s := range screenings {
		if window.Contains(s.StartTime) {
			out = append(out, s)
		}
	}
	return out
}

func printListing(l venueListing) {
	title := l.cinema.Name
	if l.cinema.Area != "" {
		title = fmt.Sprintf("%s (%s)", title, l.cinema.Area)
	}
	if l.distance != nil {
		title = fmt.Sprintf("%s, %s", title, geo.FormatDistance(*l.distance))
	}

	t := newTable()
	t.SetTitle(title)
	t.AppendHeader(table.Row{"When", "Film", "Screen", "Notes"})
	for _, s := range l.screenings {
		t.AppendRow(table.Row{
			timezone.ToLondon(s.StartTime).Format("Mon 02 Jan 15:04"),
			s.FilmTitle,
			deref(s.Screen),
			deref(s.Notes),
		})
	}
	t.Render()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var listingsCmd = &cobra.Command{
	Use:   "listings [--cinema <id>] [--days <n>] [--postcode <postcode>] [--live]",
	Short: "Prints screenings per cinema, from the snapshot or live.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := loadConfig(*configPath)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		a, err := newApp(cfg)
		if err != nil {
			serviceutil.Fatal("failed to initialize venues", err)
		}

		var screenings []cinema.Screening
		if *listingsLive {
			entry, ok := a.registry.Find(*listingsCinema)
			if !ok {
				ids := []string{}
				for _, c := range a.registry.Cinemas {
					ids = append(ids, c.ID)
				}
				serviceutil.Fatal(
					"--live needs --cinema set to one of "+strings.Join(ids, ", "),
					fmt.Errorf("unknown cinema %q", *listingsCinema),
				)
			}
			screenings, err = a.aggregator(*listingsDays).Scrape(ctx, entry)
			if err != nil {
				serviceutil.Fatal("failed to scrape "+entry.Name, err)
			}
		} else {
			file := a.store.Load()
			screenings = snapshot.Filter(file.Screenings, snapshot.Query{CinemaID: *listingsCinema})
		}
		screenings = inDays(screenings, a.time.Now(), *listingsDays)
		cinema.SortByStart(screenings)

		listings := groupByCinema(a.registry.Cinemas, screenings)
		if *listingsPostcode != "" {
			lat, lon, err := geo.NewPostcodeClient("").Lookup(ctx, *listingsPostcode)
			if err != nil {
				serviceutil.Fatal("failed to look up postcode", err)
			}
			sortByDistance(listings, lat, lon)
		}

		if len(listings) == 0 {
			fmt.Println("No screenings found.")
			return
		}
		for _, l := range listings {
			printListing(l)
		}
	},
}
