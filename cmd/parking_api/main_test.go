package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	lambdaclient "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"toshima-parking-finder/internal/models"
	"toshima-parking-finder/internal/services"
)

type fakeSpots struct {
	spots []models.ParkingSpot
	err   error
}

func (f *fakeSpots) ScanSpots(ctx context.Context, limit int32) ([]models.ParkingSpot, error) {
	return f.spots, f.err
}

func (f *fakeSpots) GetSpot(ctx context.Context, id string) (*models.ParkingSpot, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, s := range f.spots {
		if s.ID == id {
			spot := s
			return &spot, nil
		}
	}
	return nil, services.ErrNotFound
}

type fakeFacilities struct {
	records  []models.FacilityRecord
	stations []string
	limits   []int32
}

func (f *fakeFacilities) QueryFacilities(ctx context.Context, station string, limit int32) ([]models.FacilityRecord, error) {
	f.stations = append(f.stations, station)
	f.limits = append(f.limits, limit)
	return f.records, nil
}

type fakeInvoker struct {
	inputs []*lambdaclient.InvokeInput
	err    error
}

func (f *fakeInvoker) Invoke(ctx context.Context, params *lambdaclient.InvokeInput, optFns ...func(*lambdaclient.Options)) (*lambdaclient.InvokeOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &lambdaclient.InvokeOutput{StatusCode: 202}, nil
}

func testSpots() []models.ParkingSpot {
	return []models.ParkingSpot{
		{ID: "far", Name: "遠い駐輪場", Distance: 300, WalkTime: 4, Capacity: models.Capacity{Total: 100, Available: 25}, Fees: models.Fees{Daily: 200}, VehicleTypes: []string{"自転車"}},
		{ID: "", Name: "壊れたデータ"},
		{ID: "near", Name: "近い駐輪場", Distance: 50, WalkTime: 1, Capacity: models.Capacity{Total: 0}, Fees: models.Fees{Daily: 100}, VehicleTypes: []string{"自転車", "原付"}},
	}
}

func newTestHandler() (*handler, *fakeFacilities, *fakeInvoker) {
	facilities := &fakeFacilities{records: []models.FacilityRecord{{Name: "池袋駅東第二自転車駐車場", Station: "池袋駅"}}}
	invoker := &fakeInvoker{}
	return &handler{
		spots:      &fakeSpots{spots: testSpots()},
		facilities: facilities,
		invoker:    invoker,
		collector:  "pfc-collector",
	}, facilities, invoker
}

func request(method, path string, query map[string]string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{HTTPMethod: method, Path: path, QueryStringParameters: query}
}

func TestListSpots(t *testing.T) {
	h, _, _ := newTestHandler()

	resp, err := h.handleRequest(context.Background(), request("GET", "/spots", nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if resp.Headers["Access-Control-Allow-Origin"] != "*" || resp.Headers["Access-Control-Allow-Methods"] != "GET,POST,OPTIONS" {
		t.Errorf("Missing CORS headers: %v", resp.Headers)
	}

	var spots []models.FrontendSpot
	if err := json.Unmarshal([]byte(resp.Body), &spots); err != nil {
		t.Fatalf("Expected a JSON array, got %s", resp.Body)
	}
	if len(spots) != 2 {
		t.Fatalf("Expected malformed spot to be skipped, got %d spots", len(spots))
	}
	if spots[0].ID != "near" || spots[0].Distance != "50m" || spots[0].OccupancyRate != 0 {
		t.Errorf("Unexpected first spot %+v", spots[0])
	}
	if spots[1].OccupancyRate != 75 || spots[1].Price != "1日200円" || spots[1].WalkTime != "徒歩4分" {
		t.Errorf("Unexpected second spot %+v", spots[1])
	}
	if !strings.Contains(resp.Body, "近い駐輪場") {
		t.Errorf("Expected unescaped Japanese in body, got %s", resp.Body)
	}
}

func TestListSpotsFailure(t *testing.T) {
	h, _, _ := newTestHandler()
	h.spots = &fakeSpots{err: errors.New("access denied")}

	resp, _ := h.handleRequest(context.Background(), request("GET", "/spots", nil))
	if resp.StatusCode != 500 {
		t.Fatalf("Expected 500, got %d", resp.StatusCode)
	}

	var body errorBody
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body.Error != "データの取得に失敗しました" || body.Message != "access denied" {
		t.Errorf("Unexpected error body %+v", body)
	}
}

func TestGetSpot(t *testing.T) {
	tests := []struct {
		name       string
		req        events.APIGatewayProxyRequest
		wantStatus int
	}{
		{"by path", request("GET", "/spots/far", nil), 200},
		{"by path parameter", events.APIGatewayProxyRequest{HTTPMethod: "GET", Path: "/spots/x", PathParameters: map[string]string{"id": "near"}}, 200},
		{"missing", request("GET", "/spots/nothing", nil), 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newTestHandler()
			resp, _ := h.handleRequest(context.Background(), tt.req)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected %d, got %d: %s", tt.wantStatus, resp.StatusCode, resp.Body)
			}

			var body ResponseBody
			if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if body.Success != (tt.wantStatus == 200) {
				t.Errorf("Unexpected success flag in %s", resp.Body)
			}
		})
	}
}

func TestListFacilities(t *testing.T) {
	h, facilities, _ := newTestHandler()

	resp, _ := h.handleRequest(context.Background(), request("GET", "/facilities", map[string]string{"station": "池袋駅", "limit": "20"}))
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}
	if facilities.stations[0] != "池袋駅" || facilities.limits[0] != 20 {
		t.Errorf("Unexpected query %v %v", facilities.stations, facilities.limits)
	}
	if !strings.Contains(resp.Body, `"駐輪場名":"池袋駅東第二自転車駐車場"`) || !strings.Contains(resp.Body, `"count":1`) {
		t.Errorf("Unexpected body %s", resp.Body)
	}
}

func TestListFacilitiesInvalidLimit(t *testing.T) {
	for _, limit := range []string{"abc", "0", "-3", "501"} {
		t.Run(limit, func(t *testing.T) {
			h, facilities, _ := newTestHandler()
			resp, _ := h.handleRequest(context.Background(), request("GET", "/facilities", map[string]string{"limit": limit}))
			if resp.StatusCode != 400 {
				t.Errorf("Expected 400, got %d", resp.StatusCode)
			}
			if len(facilities.stations) != 0 {
				t.Error("Expected no query for an invalid limit")
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	h, _, invoker := newTestHandler()

	resp, _ := h.handleRequest(context.Background(), request("POST", "/refresh", nil))
	if resp.StatusCode != 202 {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}
	if len(invoker.inputs) != 1 {
		t.Fatalf("Expected one invocation, got %d", len(invoker.inputs))
	}
	in := invoker.inputs[0]
	if *in.FunctionName != "pfc-collector" || in.InvocationType != lambdatypes.InvocationTypeEvent {
		t.Errorf("Unexpected invocation %s %s", *in.FunctionName, in.InvocationType)
	}
}

func TestRefreshNotConfigured(t *testing.T) {
	h, _, _ := newTestHandler()
	h.invoker = nil

	resp, _ := h.handleRequest(context.Background(), request("POST", "/refresh", nil))
	if resp.StatusCode != 503 {
		t.Errorf("Expected 503, got %d", resp.StatusCode)
	}
}

func TestRefreshInvokeFailure(t *testing.T) {
	h, _, invoker := newTestHandler()
	invoker.err = errors.New("function not found")

	resp, _ := h.handleRequest(context.Background(), request("POST", "/refresh", nil))
	if resp.StatusCode != 500 {
		t.Errorf("Expected 500, got %d", resp.StatusCode)
	}
}

func TestOptionsAndUnknownRoutes(t *testing.T) {
	h, _, _ := newTestHandler()

	resp, _ := h.handleRequest(context.Background(), request("OPTIONS", "/anything", nil))
	if resp.StatusCode != 200 || resp.Body != "" {
		t.Errorf("Expected empty 200 preflight, got %d %q", resp.StatusCode, resp.Body)
	}

	resp, _ = h.handleRequest(context.Background(), request("DELETE", "/spots", nil))
	if resp.StatusCode != 404 {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}
