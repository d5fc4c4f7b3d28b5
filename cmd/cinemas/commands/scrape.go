package commands

import (
	"fmt"
	"log/slog"
	"time"

	"londoncinemas/internal/snapshot"
	"londoncinemas/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	scrapeDays *int
	scrapeOut  *string
)

func init() {
	scrapeDays = scrapeCmd.Flags().Int("days", 0, "How many days ahead to collect, defaults to days_ahead in the config.")
	scrapeOut = scrapeCmd.Flags().String("out", "", "The snapshot to write, defaults to snapshot in the config.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--days <n>] [--out <path/to/screenings.json>]",
	Short: "Scrapes every venue once and writes the snapshot.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		if *scrapeOut != "" {
			cfg.Snapshot = *scrapeOut
		}
		days := cfg.DaysAhead
		if *scrapeDays > 0 {
			days = *scrapeDays
		}

		a, err := newApp(cfg)
		if err != nil {
			serviceutil.Fatal("failed to initialize venues", err)
		}

		t1 := time.Now()
		file, err := a.aggregator(days).Run(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to write snapshot", err)
		}
		t2 := time.Now()

		printSummary(file)
		slog.Info(
			"snapshot written",
			"path", a.store.Path(),
			"screenings", file.TotalScreenings,
			"seconds", t2.Sub(t1).Seconds(),
		)
	},
}

func printSummary(file snapshot.File) {
	t := newTable()
	t.AppendHeader(table.Row{"Venue", "Screenings", "Status"})
	for _, stat := range file.Stats {
		status := "OK"
		if stat.Error != "" {
			status = fmt.Sprintf("FAILED: %s", stat.Error)
		}
		t.AppendRow(table.Row{stat.Name, stat.Screenings, status})
	}
	t.AppendFooter(table.Row{"Total", file.TotalScreenings, fmt.Sprintf("%d venues", file.Cinemas)})
	t.Render()
}
