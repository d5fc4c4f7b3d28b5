// Package venues is the registry of every supported venue, in the order
// they are scraped.
package venues

import (
	"fmt"
	"slices"

	"londoncinemas/internal/aggregator"
	"londoncinemas/internal/cinema"
	"londoncinemas/internal/components/assert"
	"londoncinemas/internal/components/chrono"
	"londoncinemas/internal/components/telemetry"
	"londoncinemas/internal/scrapers/barbican"
	"londoncinemas/internal/scrapers/curzon"
	"londoncinemas/internal/scrapers/everyman"
	"londoncinemas/internal/scrapers/garden"
	"londoncinemas/internal/scrapers/princecharles"
	"londoncinemas/internal/scrapers/rio"
	"londoncinemas/internal/scrapers/vue"
	"londoncinemas/lib/browser"
	"londoncinemas/lib/restyutil"
)

type Config struct {
	// CurzonVenue is the curzon.com venue slug, defaults to hoxton.
	CurzonVenue string `json:"curzon_venue"`
	// Disabled lists cinema ids to leave out.
	Disabled []string `json:"disabled"`
	// DebugHttpDir, when set, receives a dump of every upstream exchange.
	DebugHttpDir string `json:"-"`
}

type Deps struct {
	Browser browser.Browser
	Time    chrono.API
	Tel     telemetry.API
}

type Registry struct {
	Entries []aggregator.Entry
	Cinemas []cinema.Cinema
}

// Find returns the entry scraping the cinema `id`.
func (r Registry) Find(id string) (aggregator.Entry, bool) {
	for _, e := range r.Entries {
		if e.Source.Cinema().ID == id {
			return e, true
		}
	}
	return aggregator.Entry{}, false
}

func Build(cfg Config, deps Deps) (Registry, error) {
	assert.NotNil(deps.Browser)
	assert.NotNil(deps.Time)
	assert.NotNil(deps.Tel)

	var dump restyutil.Output
	if cfg.DebugHttpDir != "" {
		output, err := restyutil.NewFilesystemOutput(cfg.DebugHttpDir)
		if err != nil {
			return Registry{}, fmt.Errorf("create http dump dir: %w", err)
		}
		dump = output
	}

	curzonSource := curzon.New(curzon.Options{Venue: cfg.CurzonVenue, Dump: dump}, deps.Browser, deps.Time, deps.Tel)

	all := []aggregator.Entry{
		{Name: "Rio Cinema", Source: rio.New(rio.Options{Dump: dump}, deps.Time, deps.Tel)},
		{Name: curzonSource.Cinema().Name, Source: curzonSource},
		{Name: "Prince Charles Cinema", Source: princecharles.New(princecharles.Options{Dump: dump}, deps.Time, deps.Tel)},
		{Name: "Barbican Cinema", Source: barbican.New(barbican.Options{Dump: dump}, deps.Time, deps.Tel)},
		{Name: "Garden Cinema", Source: garden.New(garden.Options{Dump: dump}, deps.Time, deps.Tel)},
		{Name: "Everyman Broadgate", Source: everyman.New(everyman.Options{}, deps.Browser, deps.Time, deps.Tel)},
		{Name: "Vue Islington", Source: vue.New(vue.Options{}, deps.Browser, deps.Time, deps.Tel)},
	}

	registry := Registry{}
	for _, entry := range all {
		c := entry.Source.Cinema()
		if slices.Contains(cfg.Disabled, c.ID) {
			deps.Tel.ReportDebug("venue disabled", c.ID)
			continue
		}
		registry.Entries = append(registry.Entries, entry)
		registry.Cinemas = append(registry.Cinemas, c)
	}
	return registry, nil
}
