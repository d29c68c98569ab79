// Command parkctl maintains the parking tables and runs the ward scraper locally.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"toshima-parking-finder/internal/config"
	"toshima-parking-finder/internal/models"
	"toshima-parking-finder/internal/services"
)

// ItemStore reads and writes schemaless spots-table items
type ItemStore interface {
	ScanItems(ctx context.Context) ([]models.Item, error)
	PutItem(ctx context.Context, item models.Item) error
}

// Runner executes one scraping run
type Runner interface {
	Run(ctx context.Context, opts services.RunOptions) (*models.ScrapingRun, []models.FacilityRecord, error)
}

type app struct {
	cfg       *config.Config
	now       func() time.Time
	newStore  func(ctx context.Context) (ItemStore, error)
	newRunner func(ctx context.Context, publish bool) (Runner, error)
}

func newApp(cfg *config.Config) *app {
	a := &app{cfg: cfg, now: time.Now}
	a.newStore = a.awsStore
	a.newRunner = a.localRunner
	return a
}

func (a *app) awsStore(ctx context.Context) (ItemStore, error) {
	awsCfg, err := services.NewAWSConfig(ctx, a.cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	return services.NewParkingStore(dynamodb.NewFromConfig(awsCfg), a.cfg.SpotsTable, a.cfg.FacilitiesTable), nil
}

// localRunner scrapes from this machine. With publish the results go to the configured
// facilities table and bucket, otherwise they are only returned.
func (a *app) localRunner(ctx context.Context, publish bool) (Runner, error) {
	fetcher := services.NewPageFetcher(a.cfg.ScraperRatePerSec)
	scraper := services.NewStationScraper(fetcher, a.cfg.ScraperConcurrency)
	orchestrator := services.NewScrapingOrchestrator(services.NewStationDirectory(fetcher), scraper)

	if !publish {
		return orchestrator, nil
	}

	awsCfg, err := services.NewAWSConfig(ctx, a.cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	scraper.SetStore(services.NewParkingStore(dynamodb.NewFromConfig(awsCfg), a.cfg.SpotsTable, a.cfg.FacilitiesTable))
	if a.cfg.BucketName != "" {
		orchestrator.SetPublisher(services.NewS3Client(s3.NewFromConfig(awsCfg), a.cfg.BucketName, a.cfg.AWSRegion))
	}
	if a.cfg.HasNotifications() {
		orchestrator.SetNotifier(services.NewLineNotifier(a.cfg.LineChannelToken, a.cfg.LineNotifyToken))
	}
	return orchestrator, nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "parkctl",
		Short: "parkctl maintains the Toshima parking data",
		Long: `parkctl migrates and validates the parking spots table and runs the
ward site scraper from the command line.

Usage:
  parkctl migrate [--dry-run]
  parkctl validate
  parkctl cleanup [--yes]
  parkctl scrape [--station name] [--publish]
  parkctl parse <page.html>
  parkctl watch --schedule "0 6 * * *"`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newMigrateCmd(a),
		newValidateCmd(a),
		newCleanupCmd(a),
		newScrapeCmd(a),
		newParseCmd(),
		newWatchCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(newApp(config.Load())).ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
