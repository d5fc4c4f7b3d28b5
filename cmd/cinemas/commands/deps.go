package commands

import (
	"os"

	"londoncinemas/internal/aggregator"
	"londoncinemas/internal/components/chrono"
	"londoncinemas/internal/components/telemetry"
	"londoncinemas/internal/snapshot"
	"londoncinemas/internal/venues"
	"londoncinemas/lib/browser"

	"github.com/jedib0t/go-pretty/v6/table"
)

type app struct {
	cfg      Config
	time     chrono.API
	tel      telemetry.API
	registry venues.Registry
	store    snapshot.Store
}

func newApp(cfg Config) (app, error) {
	tel := telemetry.NewSlogAPI()
	clock := chrono.NewStandardImpl()

	registry, err := venues.Build(cfg.Venues, venues.Deps{
		Browser: browser.NewChrome(cfg.Browser),
		Time:    clock,
		Tel:     tel,
	})
	if err != nil {
		return app{}, err
	}

	return app{
		cfg:      cfg,
		time:     clock,
		tel:      tel,
		registry: registry,
		store:    snapshot.NewStore(cfg.Snapshot, tel),
	}, nil
}

func (a app) aggregator(daysAhead int) aggregator.Aggregator {
	// validated by loadConfig
	timeout, _ := a.cfg.venueTimeout()
	return aggregator.New(a.registry.Entries, aggregator.Options{
		DaysAhead:    daysAhead,
		VenueTimeout: timeout,
	}, a.store, a.time, a.tel)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
