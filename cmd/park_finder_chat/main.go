package main

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"toshima-parking-finder/internal/chat"
	"toshima-parking-finder/internal/config"
	"toshima-parking-finder/internal/services"
)

// ChatResponse represents the Lambda response
type ChatResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

type handler struct {
	chat *chat.Service
}

func (h *handler) handleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (ChatResponse, error) {
	if request.HTTPMethod == "OPTIONS" {
		return ChatResponse{StatusCode: 200, Headers: headers(), Body: ""}, nil
	}

	body := request.Body
	if strings.TrimSpace(body) == "" {
		body = "{}"
	}

	var req chat.Request
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		log.Printf("Error: failed to decode chat request: %v", err)
		return respond(500, chat.ErrorResponse()), nil
	}

	status, resp := h.chat.Handle(ctx, req)
	return respond(status, resp), nil
}

func headers() map[string]string {
	return map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Content-Type",
		"Access-Control-Allow-Methods": "GET,POST,OPTIONS",
	}
}

func respond(status int, body chat.Response) ChatResponse {
	data, err := json.Marshal(body)
	if err != nil {
		log.Printf("Error marshaling response body: %v", err)
		return ChatResponse{
			StatusCode: 500,
			Headers:    headers(),
			Body:       `{"error":"エラーが発生しました"}`,
		}
	}
	return ChatResponse{StatusCode: status, Headers: headers(), Body: string(data)}
}

func newHandler(cfg *config.Config, spots chat.SpotSource) *handler {
	var recommender chat.Recommender
	if cfg.OpenAIAPIKey != "" {
		recommender = services.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.MaxLLMTokens)
	} else {
		log.Printf("OPENAI_API_KEY not set, selection results use the canned message")
	}

	return &handler{
		chat: chat.NewService(spots, recommender, cfg.EnableSelectionMode),
	}
}

func main() {
	cfg := config.Load()

	awsCfg, err := services.NewAWSConfig(context.Background(), cfg.AWSRegion)
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	store := services.NewParkingStore(dynamodb.NewFromConfig(awsCfg), cfg.SpotsTable, cfg.FacilitiesTable)
	lambda.Start(newHandler(cfg, store).handleRequest)
}
