package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	lambdaclient "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"toshima-parking-finder/internal/config"
	"toshima-parking-finder/internal/models"
	"toshima-parking-finder/internal/services"
)

// APIResponse represents the Lambda response
type APIResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// ResponseBody represents the response body structure of the newer endpoints
type ResponseBody struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SpotReader reads the spots table
type SpotReader interface {
	ScanSpots(ctx context.Context, limit int32) ([]models.ParkingSpot, error)
	GetSpot(ctx context.Context, id string) (*models.ParkingSpot, error)
}

// FacilityReader reads scraped facilities
type FacilityReader interface {
	QueryFacilities(ctx context.Context, station string, limit int32) ([]models.FacilityRecord, error)
}

// Invoker starts another Lambda function
type Invoker interface {
	Invoke(ctx context.Context, params *lambdaclient.InvokeInput, optFns ...func(*lambdaclient.Options)) (*lambdaclient.InvokeOutput, error)
}

const maxFacilityLimit = 500

var corsHeaders = map[string]string{
	"Content-Type":                 "application/json",
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Content-Type",
	"Access-Control-Allow-Methods": "GET,POST,OPTIONS",
}

type handler struct {
	spots      SpotReader
	facilities FacilityReader
	invoker    Invoker
	collector  string
}

func (h *handler) handleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (APIResponse, error) {
	if request.HTTPMethod == "OPTIONS" {
		return APIResponse{StatusCode: 200, Headers: headers(), Body: ""}, nil
	}

	path := strings.TrimSuffix(request.Path, "/")
	method := request.HTTPMethod
	log.Printf("Parking API request: %s %s", method, request.Path)

	switch {
	case method == "GET" && (path == "" || path == "/spots"):
		return h.handleListSpots(ctx)

	case method == "GET" && strings.HasPrefix(path, "/spots/"):
		id := request.PathParameters["id"]
		if id == "" {
			id = strings.TrimPrefix(path, "/spots/")
		}
		return h.handleGetSpot(ctx, id)

	case method == "GET" && path == "/facilities":
		return h.handleListFacilities(ctx, request.QueryStringParameters)

	case method == "POST" && path == "/refresh":
		return h.handleRefresh(ctx)
	}

	return respond(404, ResponseBody{Success: false, Error: "Not found"}), nil
}

// handleListSpots handles GET /spots. The body is the bare array the map frontend reads.
func (h *handler) handleListSpots(ctx context.Context) (APIResponse, error) {
	spots, err := h.spots.ScanSpots(ctx, 0)
	if err != nil {
		log.Printf("Error: %v", err)
		return respond(500, errorBody{Error: "データの取得に失敗しました", Message: err.Error()}), nil
	}

	formatted, errs := models.FormatForFrontend(spots)
	for _, err := range errs {
		log.Printf("Error formatting spot: %v", err)
	}
	return respond(200, formatted), nil
}

// handleGetSpot handles GET /spots/{id}
func (h *handler) handleGetSpot(ctx context.Context, id string) (APIResponse, error) {
	spot, err := h.spots.GetSpot(ctx, id)
	if errors.Is(err, services.ErrNotFound) {
		return respond(404, ResponseBody{Success: false, Error: "駐輪場が見つかりません"}), nil
	}
	if err != nil {
		log.Printf("Error getting spot %s: %v", id, err)
		return respond(500, ResponseBody{Success: false, Error: "データの取得に失敗しました", Message: err.Error()}), nil
	}

	formatted, err := spot.ToFrontend()
	if err != nil {
		log.Printf("Error formatting spot %s: %v", id, err)
		return respond(500, ResponseBody{Success: false, Error: "データの取得に失敗しました", Message: err.Error()}), nil
	}
	return respond(200, ResponseBody{Success: true, Message: "OK", Data: formatted}), nil
}

// handleListFacilities handles GET /facilities?station=&limit=
func (h *handler) handleListFacilities(ctx context.Context, params map[string]string) (APIResponse, error) {
	var limit int32
	if raw := params["limit"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxFacilityLimit {
			return respond(400, ResponseBody{
				Success: false,
				Error:   fmt.Sprintf("limit must be between 1 and %d", maxFacilityLimit),
			}), nil
		}
		limit = int32(n)
	}

	station := params["station"]
	records, err := h.facilities.QueryFacilities(ctx, station, limit)
	if err != nil {
		log.Printf("Error querying facilities: %v", err)
		return respond(500, ResponseBody{Success: false, Error: "データの取得に失敗しました", Message: err.Error()}), nil
	}
	if records == nil {
		records = []models.FacilityRecord{}
	}

	return respond(200, ResponseBody{
		Success: true,
		Message: fmt.Sprintf("Found %d facilities", len(records)),
		Data: map[string]interface{}{
			"station":    station,
			"count":      len(records),
			"facilities": records,
		},
	}), nil
}

// handleRefresh handles POST /refresh by starting the collector without waiting for it
func (h *handler) handleRefresh(ctx context.Context) (APIResponse, error) {
	if h.invoker == nil || h.collector == "" {
		return respond(503, ResponseBody{Success: false, Error: "Refresh is not configured"}), nil
	}

	_, err := h.invoker.Invoke(ctx, &lambdaclient.InvokeInput{
		FunctionName:   aws.String(h.collector),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        []byte(`{"source":"parking-api","trigger-type":"manual"}`),
	})
	if err != nil {
		log.Printf("Failed to invoke collector %s: %v", h.collector, err)
		return respond(500, ResponseBody{Success: false, Error: "Failed to start refresh", Message: err.Error()}), nil
	}

	log.Printf("Triggered collector %s", h.collector)
	return respond(202, ResponseBody{Success: true, Message: "Refresh started"}), nil
}

func headers() map[string]string {
	h := make(map[string]string, len(corsHeaders))
	for k, v := range corsHeaders {
		h[k] = v
	}
	return h
}

func respond(status int, body interface{}) APIResponse {
	data, err := json.Marshal(body)
	if err != nil {
		log.Printf("Error marshaling response body: %v", err)
		return APIResponse{
			StatusCode: 500,
			Headers:    headers(),
			Body:       `{"success":false,"error":"Internal server error"}`,
		}
	}
	return APIResponse{StatusCode: status, Headers: headers(), Body: string(data)}
}

func main() {
	cfg := config.Load()

	awsCfg, err := services.NewAWSConfig(context.Background(), cfg.AWSRegion)
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	store := services.NewParkingStore(dynamodb.NewFromConfig(awsCfg), cfg.SpotsTable, cfg.FacilitiesTable)
	h := &handler{
		spots:      store,
		facilities: store,
		collector:  cfg.CollectorFunctionName,
	}
	if cfg.CollectorFunctionName != "" {
		h.invoker = lambdaclient.NewFromConfig(awsCfg)
	} else {
		log.Printf("COLLECTOR_FUNCTION_NAME not set, POST /refresh disabled")
	}

	lambda.Start(h.handleRequest)
}
