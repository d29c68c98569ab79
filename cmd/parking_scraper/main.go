package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"toshima-parking-finder/internal/config"
	"toshima-parking-finder/internal/models"
	"toshima-parking-finder/internal/services"
)

// ScraperEvent represents the EventBridge trigger event
type ScraperEvent struct {
	Source        string   `json:"source"`
	DetailType    string   `json:"detail-type"`
	TriggerType   string   `json:"trigger-type,omitempty"`   // manual, scheduled
	StationFilter []string `json:"station-filter,omitempty"` // optional station names or page URLs
}

// ScraperResponse represents the function response
type ScraperResponse struct {
	Success         bool                `json:"success"`
	Message         string              `json:"message"`
	ScrapingRunID   string              `json:"scraping_run_id"`
	TotalFacilities int                 `json:"total_facilities"`
	ProcessingTime  int64               `json:"processing_time_ms"`
	Run             *models.ScrapingRun `json:"run,omitempty"`
	Errors          []string            `json:"errors,omitempty"`
}

// Orchestrator runs one scraping run
type Orchestrator interface {
	Run(ctx context.Context, opts services.RunOptions) (*models.ScrapingRun, []models.FacilityRecord, error)
}

type handler struct {
	orchestrator Orchestrator
}

func triggerType(event ScraperEvent) string {
	if event.TriggerType != "" {
		return event.TriggerType
	}
	if event.Source == "aws.events" {
		return models.TriggerTypeScheduled
	}
	return models.TriggerTypeManual
}

func (h *handler) handleRequest(ctx context.Context, event ScraperEvent) (ScraperResponse, error) {
	start := time.Now()
	log.Printf("Lambda function started with event: %+v", event)

	opts := services.RunOptions{
		TriggerType:   triggerType(event),
		StationFilter: event.StationFilter,
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		opts.RequestID = lc.AwsRequestID
	}
	log.Printf("Starting scraping with trigger type: %s", opts.TriggerType)

	run, _, err := h.orchestrator.Run(ctx, opts)
	if err != nil {
		errorMsg := fmt.Sprintf("Scraping failed: %v", err)
		log.Printf("ERROR: %s", errorMsg)
		resp := ScraperResponse{
			Success:        false,
			Message:        errorMsg,
			ProcessingTime: time.Since(start).Milliseconds(),
			Run:            run,
		}
		if run != nil {
			resp.ScrapingRunID = run.ID
		}
		return resp, err
	}

	resp := ScraperResponse{
		ScrapingRunID:   run.ID,
		TotalFacilities: run.TotalFacilities,
		ProcessingTime:  time.Since(start).Milliseconds(),
		Run:             run,
	}

	if len(run.Results) == 0 && run.TotalStations > 0 {
		// fan-out run, the workers report per station
		resp.Success = run.Status == models.ScrapingStatusQueued
		resp.Message = fmt.Sprintf("Queued %d stations for run %s", run.TotalStations, run.ID)
		resp.Errors = run.Warnings
	} else {
		resp.Success = run.SuccessfulStations > 0
		resp.Message = fmt.Sprintf("Scraped %d facilities from %d/%d stations", run.TotalFacilities, run.SuccessfulStations, run.TotalStations)
	}

	for _, result := range run.Results {
		if !result.Success && result.Error != "" {
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %s", result.Station, result.Error))
		}
	}

	log.Printf("Lambda function completed: %s", resp.Message)
	log.Printf("Total processing time: %dms", resp.ProcessingTime)
	return resp, nil
}

func newOrchestrator(ctx context.Context, cfg *config.Config) (*services.ScrapingOrchestrator, error) {
	awsCfg, err := services.NewAWSConfig(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}

	fetcher := services.NewPageFetcher(cfg.ScraperRatePerSec)
	scraper := services.NewStationScraper(fetcher, cfg.ScraperConcurrency)
	scraper.SetStore(services.NewParkingStore(dynamodb.NewFromConfig(awsCfg), cfg.SpotsTable, cfg.FacilitiesTable))

	orchestrator := services.NewScrapingOrchestrator(services.NewStationDirectory(fetcher), scraper)

	if cfg.BucketName != "" {
		s3Client := services.NewS3Client(s3.NewFromConfig(awsCfg), cfg.BucketName, cfg.AWSRegion)
		orchestrator.SetPublisher(s3Client)
		if cfg.ArchiveRawHTML {
			scraper.SetArchive(s3Client)
		}
	} else {
		log.Printf("S3_BUCKET_NAME not set, results will not be uploaded")
	}

	if cfg.TaskQueueURL != "" {
		orchestrator.SetQueue(services.NewTaskQueue(sqs.NewFromConfig(awsCfg), cfg.TaskQueueURL))
		log.Printf("Fan-out mode: stations are queued to %s", cfg.TaskQueueURL)
	}

	if cfg.HasNotifications() {
		orchestrator.SetNotifier(services.NewLineNotifier(cfg.LineChannelToken, cfg.LineNotifyToken))
	}

	return orchestrator, nil
}

func main() {
	cfg := config.Load()

	orchestrator, err := newOrchestrator(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize orchestrator: %v", err)
	}

	h := &handler{orchestrator: orchestrator}
	lambda.Start(h.handleRequest)
}
