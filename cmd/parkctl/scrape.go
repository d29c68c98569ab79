package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"toshima-parking-finder/internal/models"
	"toshima-parking-finder/internal/normalizer"
	"toshima-parking-finder/internal/services"
)

type scrapeOutput struct {
	Run        *models.ScrapingRun     `json:"run"`
	Facilities []models.FacilityRecord `json:"facilities"`
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func newScrapeCmd(a *app) *cobra.Command {
	var stations []string
	var publish bool

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape the ward station pages and print the facilities as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := a.newRunner(cmd.Context(), publish)
			if err != nil {
				return err
			}

			run, records, err := runner.Run(cmd.Context(), services.RunOptions{
				TriggerType:   models.TriggerTypeManual,
				StationFilter: stations,
			})
			if err != nil {
				return err
			}
			if records == nil {
				records = []models.FacilityRecord{}
			}
			return writeJSON(cmd.OutOrStdout(), scrapeOutput{Run: run, Facilities: records})
		},
	}

	cmd.Flags().StringSliceVar(&stations, "station", nil, "Only scrape these stations (name, label or page file)")
	cmd.Flags().BoolVar(&publish, "publish", false, "Store and upload the results like the scheduled function")
	return cmd
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <page.html>",
		Short: "Normalize a saved station page and print its facilities as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open page: %w", err)
			}
			defer f.Close()

			records, err := normalizer.ParsePage(f)
			if err != nil {
				return err
			}
			if records == nil {
				records = []models.FacilityRecord{}
			}
			return writeJSON(cmd.OutOrStdout(), records)
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	var schedule string
	var publish bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Scrape periodically on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := a.newRunner(cmd.Context(), publish)
			if err != nil {
				return err
			}

			c, err := scheduleRuns(schedule, func() {
				runOnce(cmd.Context(), runner, cmd.OutOrStdout())
			})
			if err != nil {
				return err
			}

			c.Start()
			log.Printf("Scraping on schedule %q, press Ctrl+C to stop", schedule)
			<-cmd.Context().Done()

			<-c.Stop().Done()
			log.Printf("Watch stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "0 6 * * *", "Cron schedule of the runs")
	cmd.Flags().BoolVar(&publish, "publish", false, "Store and upload the results of every run")
	return cmd
}

// scheduleRuns returns a cron scheduler calling job on the standard five-field schedule.
// A tick is skipped while the previous run is still going.
func scheduleRuns(schedule string, job func()) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))))
	if _, err := c.AddFunc(schedule, job); err != nil {
		return nil, fmt.Errorf("failed to parse schedule %q: %w", schedule, err)
	}
	return c, nil
}

func runOnce(ctx context.Context, runner Runner, out io.Writer) {
	run, _, err := runner.Run(ctx, services.RunOptions{TriggerType: models.TriggerTypeScheduled})
	if err != nil {
		log.Printf("Scheduled scrape failed: %v", err)
		return
	}
	fmt.Fprintf(out, "%s %s: %d facilities from %d/%d stations\n",
		run.ID, run.Status, run.TotalFacilities, run.SuccessfulStations, run.TotalStations)
}
