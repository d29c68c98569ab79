package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"toshima-parking-finder/internal/config"
	"toshima-parking-finder/internal/models"
	"toshima-parking-finder/internal/services"
)

// CollectorResponse is the Lambda response
type CollectorResponse struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type collectResult struct {
	Message        string `json:"message"`
	Timestamp      string `json:"timestamp"`
	ProcessedCount int    `json:"processed_count"`
}

type collectFailure struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// SpotWriter replaces spots in the spots table
type SpotWriter interface {
	BatchPutSpots(ctx context.Context, spots []models.ParkingSpot) (int, error)
}

type handler struct {
	store SpotWriter
	now   func() time.Time
	rng   *rand.Rand
}

func (h *handler) handleRequest(ctx context.Context) (CollectorResponse, error) {
	log.Printf("Starting parking data collection...")
	now := h.now()
	timestamp := now.Format("2006-01-02T15:04:05.000000")

	collected := models.CollectSpots(now, h.rng)
	valid := make([]models.ParkingSpot, 0, len(collected))
	for _, spot := range collected {
		if err := models.ValidateParkingSpot(spot); err != nil {
			log.Printf("Skipping invalid spot %s: %v", spot.ID, err)
			continue
		}
		valid = append(valid, spot)
	}

	saved, err := h.store.BatchPutSpots(ctx, valid)
	if err != nil {
		log.Printf("Error in parking data collection: %v", err)
		return respond(500, collectFailure{
			Error:     "Failed to collect parking data",
			Message:   err.Error(),
			Timestamp: timestamp,
		}), nil
	}

	log.Printf("Successfully processed %d parking spots", saved)
	return respond(200, collectResult{
		Message:        fmt.Sprintf("Successfully updated %d parking spots", saved),
		Timestamp:      timestamp,
		ProcessedCount: saved,
	}), nil
}

func respond(status int, body interface{}) CollectorResponse {
	data, err := json.Marshal(body)
	if err != nil {
		log.Printf("Error marshaling response body: %v", err)
		return CollectorResponse{StatusCode: 500, Body: `{"error":"Internal server error"}`}
	}
	return CollectorResponse{StatusCode: status, Body: string(data)}
}

func main() {
	cfg := config.Load()

	awsCfg, err := services.NewAWSConfig(context.Background(), cfg.AWSRegion)
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	store := services.NewParkingStore(dynamodb.NewFromConfig(awsCfg), cfg.SpotsTable, cfg.FacilitiesTable)
	h := &handler{
		store: store,
		now:   time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	lambda.Start(h.handleRequest)
}
