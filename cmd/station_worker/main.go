package main

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"toshima-parking-finder/internal/config"
	"toshima-parking-finder/internal/models"
	"toshima-parking-finder/internal/services"
)

// StationScraper processes one station page
type StationScraper interface {
	ScrapeStation(ctx context.Context, runID string, station models.Station) ([]models.FacilityRecord, models.StationResult)
}

type handler struct {
	scraper StationScraper
}

// handleRequest scrapes the station of every message. Failed messages are reported
// individually so that only they return to the queue.
func (h *handler) handleRequest(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	log.Printf("Processing %d SQS messages", len(sqsEvent.Records))

	var resp events.SQSEventResponse
	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			log.Printf("Failed to process message %s: %v", record.MessageId, err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}

	log.Printf("Processed %d messages, %d failed", len(sqsEvent.Records), len(resp.BatchItemFailures))
	return resp, nil
}

func (h *handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	task, err := services.ParseStationTask(record.Body)
	if err != nil {
		return err
	}

	log.Printf("Starting station task %s of run %s: %s", task.TaskID, task.RunID, task.Station.Name)
	_, result := h.scraper.ScrapeStation(ctx, task.RunID, task.Station)
	if !result.Success {
		return fmt.Errorf("failed to scrape station %s: %s", result.Station, result.Error)
	}

	log.Printf("Task %s completed: %d facilities, %d stored", task.TaskID, result.FacilitiesFound, result.StoredFacilities)
	return nil
}

func main() {
	cfg := config.Load()

	awsCfg, err := services.NewAWSConfig(context.Background(), cfg.AWSRegion)
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	fetcher := services.NewPageFetcher(cfg.ScraperRatePerSec)
	scraper := services.NewStationScraper(fetcher, 1)
	scraper.SetStore(services.NewParkingStore(dynamodb.NewFromConfig(awsCfg), cfg.SpotsTable, cfg.FacilitiesTable))

	if cfg.ArchiveRawHTML && cfg.BucketName != "" {
		scraper.SetArchive(services.NewS3Client(s3.NewFromConfig(awsCfg), cfg.BucketName, cfg.AWSRegion))
	}

	h := &handler{scraper: scraper}
	lambda.Start(h.handleRequest)
}
