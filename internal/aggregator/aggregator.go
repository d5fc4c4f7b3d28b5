// Package aggregator runs every venue source once and writes the merged
// result as a snapshot.
package aggregator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"londoncinemas/internal/cinema"
	"londoncinemas/internal/components/assert"
	"londoncinemas/internal/components/chrono"
	"londoncinemas/internal/components/telemetry"
	"londoncinemas/internal/snapshot"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("cinemas/aggregator")

const (
	report_aggregator_scrape_venue = "aggregator.scrape-venue"
	report_aggregator_venue_count  = "aggregator.venue-count"
	report_aggregator_total        = "aggregator.total"
)

// Entry is a venue source together with the name it is reported under.
type Entry struct {
	Name   string
	Source cinema.Source
}

type Options struct {
	// DaysAhead defaults to cinema.DefaultDaysAhead.
	DaysAhead int
	// VenueTimeout bounds a single venue's scrape, zero means unbounded.
	VenueTimeout time.Duration
}

type Aggregator struct {
	entries []Entry
	opts    Options
	store   snapshot.Store
	time    chrono.API
	tel     telemetry.API
}

func New(entries []Entry, opts Options, store snapshot.Store, time chrono.API, tel telemetry.API) Aggregator {
	assert.NotNil(time)
	assert.NotNil(tel)
	for _, e := range entries {
		assert.NotNil(e.Source)
	}

	if opts.DaysAhead <= 0 {
		opts.DaysAhead = cinema.DefaultDaysAhead
	}

	return Aggregator{
		entries: entries,
		opts:    opts,
		store:   store,
		time:    time,
		tel:     telemetry.NewScopedAPI("aggregator", tel),
	}
}

// Scrape runs a single entry, a panicking source is reported as an error.
func (a Aggregator) Scrape(ctx context.Context, entry Entry) (screenings []cinema.Screening, err error) {
	ctx, span := tracer.Start(ctx, "Scrape")
	defer span.End()
	span.SetAttributes(
		attribute.String("venue", entry.Name),
		attribute.String("cinema_id", entry.Source.Cinema().ID),
	)

	if a.opts.VenueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.VenueTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			screenings = nil
			err = fmt.Errorf("%s panicked: %v", entry.Name, r)
			a.tel.ReportDebug("venue panic stack", entry.Name, string(debug.Stack()))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "venue failed")
			return
		}
		span.SetAttributes(attribute.Int("screenings", len(screenings)))
	}()

	return entry.Source.Scrape(ctx, a.opts.DaysAhead)
}

// Collect scrapes every entry in order without writing anything. Failed
// venues contribute no screenings and are recorded in their stat.
func (a Aggregator) Collect(ctx context.Context) ([]cinema.Screening, []snapshot.VenueStat) {
	merged := []cinema.Screening{}
	stats := make([]snapshot.VenueStat, 0, len(a.entries))

	for _, entry := range a.entries {
		stat := snapshot.VenueStat{
			Name:     entry.Name,
			CinemaID: entry.Source.Cinema().ID,
		}

		screenings, err := a.Scrape(ctx, entry)
		if err != nil {
			a.tel.ReportBroken(report_aggregator_scrape_venue, err, entry.Name)
			stat.Error = err.Error()
		} else {
			stat.Screenings = len(screenings)
			merged = append(merged, screenings...)
		}
		a.tel.ReportCount(fmt.Sprintf("%s.%s", report_aggregator_venue_count, stat.CinemaID), int64(stat.Screenings))
		stats = append(stats, stat)
	}

	merged = cinema.DedupeByID(merged)
	cinema.SortByStart(merged)
	return merged, stats
}

// Run scrapes every entry and replaces the snapshot. The only error it
// returns is a failure to write the snapshot.
func (a Aggregator) Run(ctx context.Context) (snapshot.File, error) {
	runId := uuid.NewString()
	a.tel.ReportDebug("starting run", runId, len(a.entries))

	screenings, stats := a.Collect(ctx)

	generatedAt := a.time.Now()
	file := snapshot.File{
		Screenings:      screenings,
		GeneratedAt:     &generatedAt,
		TotalScreenings: len(screenings),
		Cinemas:         len(a.entries),
		Stats:           stats,
		RunID:           runId,
	}
	a.tel.ReportCount(report_aggregator_total, int64(file.TotalScreenings))

	err := a.store.Write(file)
	if err != nil {
		return file, fmt.Errorf("write snapshot: %w", err)
	}
	return file, nil
}
