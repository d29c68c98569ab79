package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"toshima-parking-finder/internal/models"
)

// fakeDynamoDB records requests and serves canned responses
type fakeDynamoDB struct {
	puts        []*dynamodb.PutItemInput
	putErr      error
	batches     []*dynamodb.BatchWriteItemInput
	unprocessed []map[string][]types.WriteRequest
	queries     []*dynamodb.QueryInput
	queryItems  []map[string]types.AttributeValue
	scans       []*dynamodb.ScanInput
	scanItems   []map[string]types.AttributeValue
	getItem     map[string]types.AttributeValue
}

func (f *fakeDynamoDB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.puts = append(f.puts, params)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoDB) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.getItem}, nil
}

func (f *fakeDynamoDB) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, params)
	return &dynamodb.QueryOutput{Items: f.queryItems}, nil
}

func (f *fakeDynamoDB) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scans = append(f.scans, params)
	return &dynamodb.ScanOutput{Items: f.scanItems}, nil
}

func (f *fakeDynamoDB) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.batches = append(f.batches, params)
	out := &dynamodb.BatchWriteItemOutput{}
	if len(f.unprocessed) > 0 {
		out.UnprocessedItems = f.unprocessed[0]
		f.unprocessed = f.unprocessed[1:]
	}
	return out, nil
}

func newTestStore(client *fakeDynamoDB) *ParkingStore {
	return NewParkingStore(client, "spots-test", "facilities-test")
}

func testSpots(n int) []models.ParkingSpot {
	spots := make([]models.ParkingSpot, n)
	for i := range spots {
		spots[i] = models.ParkingSpot{
			ID:       fmt.Sprintf("spot-%d", i),
			Name:     fmt.Sprintf("駐輪場%d", i),
			Capacity: models.Capacity{Total: 100, Available: 40},
		}
	}
	return spots
}

func TestBatchPutSpotsChunks(t *testing.T) {
	client := &fakeDynamoDB{}
	store := newTestStore(client)

	written, err := store.BatchPutSpots(context.Background(), testSpots(60))
	if err != nil {
		t.Fatalf("BatchPutSpots() error = %v", err)
	}
	if written != 60 {
		t.Errorf("Expected 60 spots written, got %d", written)
	}

	wantSizes := []int{25, 25, 10}
	if len(client.batches) != len(wantSizes) {
		t.Fatalf("Expected %d batch calls, got %d", len(wantSizes), len(client.batches))
	}
	for i, batch := range client.batches {
		if got := len(batch.RequestItems["spots-test"]); got != wantSizes[i] {
			t.Errorf("Batch %d: expected %d requests, got %d", i, wantSizes[i], got)
		}
	}
}

func TestBatchPutSpotsRetriesUnprocessed(t *testing.T) {
	leftover := map[string][]types.WriteRequest{
		"spots-test": {{PutRequest: &types.PutRequest{Item: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: "spot-0"},
		}}}},
	}
	client := &fakeDynamoDB{unprocessed: []map[string][]types.WriteRequest{leftover}}
	store := newTestStore(client)

	if _, err := store.BatchPutSpots(context.Background(), testSpots(3)); err != nil {
		t.Fatalf("BatchPutSpots() error = %v", err)
	}

	if len(client.batches) != 2 {
		t.Fatalf("Expected 2 batch calls, got %d", len(client.batches))
	}
	if got := len(client.batches[1].RequestItems["spots-test"]); got != 1 {
		t.Errorf("Expected retry of 1 unprocessed item, got %d", got)
	}
}

func TestBatchPutSpotsGivesUp(t *testing.T) {
	leftover := map[string][]types.WriteRequest{
		"spots-test": {{PutRequest: &types.PutRequest{Item: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: "spot-0"},
		}}}},
	}
	var pending []map[string][]types.WriteRequest
	for i := 0; i <= maxUnprocessedRetries; i++ {
		pending = append(pending, leftover)
	}
	client := &fakeDynamoDB{unprocessed: pending}

	if _, err := newTestStore(client).BatchPutSpots(context.Background(), testSpots(1)); err == nil {
		t.Error("Expected error when items stay unprocessed")
	}
}

func TestGetSpotNotFound(t *testing.T) {
	store := newTestStore(&fakeDynamoDB{})

	_, err := store.GetSpot(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetSpot(t *testing.T) {
	item, err := attributevalue.MarshalMap(testSpots(1)[0])
	if err != nil {
		t.Fatalf("failed to marshal spot: %v", err)
	}
	store := newTestStore(&fakeDynamoDB{getItem: item})

	spot, err := store.GetSpot(context.Background(), "spot-0")
	if err != nil {
		t.Fatalf("GetSpot() error = %v", err)
	}
	if spot.Name != "駐輪場0" || spot.Capacity.Available != 40 {
		t.Errorf("Unexpected spot: %+v", spot)
	}
}

func TestPutFacility(t *testing.T) {
	client := &fakeDynamoDB{}
	store := newTestStore(client)

	record := models.FacilityRecord{
		Name:           "池袋駅東第二自転車駐車場",
		Address:        "豊島区東池袋1-7-1",
		VehicleSupport: models.VehicleSupportUnavailable,
		Station:        "池袋駅（東口）",
	}
	scrapedAt := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	stored, err := store.PutFacilities(context.Background(), []models.FacilityRecord{record}, "run_1", "https://example.com/022249.html", scrapedAt)
	if err != nil {
		t.Fatalf("PutFacilities() error = %v", err)
	}
	if stored != 1 || len(client.puts) != 1 {
		t.Fatalf("Expected 1 put, got stored=%d puts=%d", stored, len(client.puts))
	}

	put := client.puts[0]
	if aws.ToString(put.TableName) != "facilities-test" {
		t.Errorf("Expected facilities table, got %s", aws.ToString(put.TableName))
	}

	var got models.StoredFacility
	if err := attributevalue.UnmarshalMap(put.Item, &got); err != nil {
		t.Fatalf("failed to unmarshal item: %v", err)
	}
	wantID := models.GenerateFacilityID(record.Station, record.Name)
	if got.PK != "FACILITY#"+wantID {
		t.Errorf("Expected PK FACILITY#%s, got %s", wantID, got.PK)
	}
	if got.StationKey != "STATION#池袋駅（東口）" {
		t.Errorf("Expected station key, got %s", got.StationKey)
	}
	if got.VehicleSupportLabel != models.VehicleSupportUnavailableLabel {
		t.Errorf("Expected label %s, got %s", models.VehicleSupportUnavailableLabel, got.VehicleSupportLabel)
	}
	if got.Address != record.Address || got.RunID != "run_1" {
		t.Errorf("Unexpected stored facility: %+v", got)
	}
}

func TestPutFacilitiesContinuesOnError(t *testing.T) {
	client := &fakeDynamoDB{putErr: errors.New("throttled")}
	records := []models.FacilityRecord{{Name: "A駐輪場"}, {Name: "B駐輪場"}}

	stored, err := newTestStore(client).PutFacilities(context.Background(), records, "run_1", "", time.Now())
	if err == nil {
		t.Error("Expected first error to be returned")
	}
	if stored != 0 {
		t.Errorf("Expected 0 stored, got %d", stored)
	}
}

func TestQueryFacilitiesByStation(t *testing.T) {
	record := models.FacilityRecord{Name: "大塚駅南口自転車駐車場", Station: "大塚駅"}
	item, err := attributevalue.MarshalMap(models.NewStoredFacility(record, "run_1", "", time.Now()))
	if err != nil {
		t.Fatalf("failed to marshal facility: %v", err)
	}
	client := &fakeDynamoDB{queryItems: []map[string]types.AttributeValue{item}}

	records, err := newTestStore(client).QueryFacilities(context.Background(), "大塚駅", 10)
	if err != nil {
		t.Fatalf("QueryFacilities() error = %v", err)
	}
	if len(records) != 1 || records[0].Name != record.Name {
		t.Fatalf("Unexpected records: %+v", records)
	}

	q := client.queries[0]
	if aws.ToString(q.IndexName) != stationIndexName {
		t.Errorf("Expected index %s, got %s", stationIndexName, aws.ToString(q.IndexName))
	}
	if aws.ToInt32(q.Limit) != 10 {
		t.Errorf("Expected limit 10, got %d", aws.ToInt32(q.Limit))
	}
	key, ok := q.ExpressionAttributeValues[":stationKey"].(*types.AttributeValueMemberS)
	if !ok || key.Value != "STATION#大塚駅" {
		t.Errorf("Unexpected key condition value: %+v", q.ExpressionAttributeValues)
	}
}

func TestQueryFacilitiesWithoutStationScans(t *testing.T) {
	client := &fakeDynamoDB{}

	if _, err := newTestStore(client).QueryFacilities(context.Background(), "", 5); err != nil {
		t.Fatalf("QueryFacilities() error = %v", err)
	}
	if len(client.queries) != 0 || len(client.scans) != 1 {
		t.Fatalf("Expected a single scan, got %d queries and %d scans", len(client.queries), len(client.scans))
	}
	if aws.ToString(client.scans[0].TableName) != "facilities-test" {
		t.Errorf("Expected facilities table, got %s", aws.ToString(client.scans[0].TableName))
	}
}

func TestScanSpotsSkipsMalformed(t *testing.T) {
	good, err := attributevalue.MarshalMap(testSpots(1)[0])
	if err != nil {
		t.Fatalf("failed to marshal spot: %v", err)
	}
	bad := map[string]types.AttributeValue{
		"id":       &types.AttributeValueMemberS{Value: "broken"},
		"capacity": &types.AttributeValueMemberS{Value: "lots"},
	}
	client := &fakeDynamoDB{scanItems: []map[string]types.AttributeValue{good, bad}}

	spots, err := newTestStore(client).ScanSpots(context.Background(), 50)
	if err != nil {
		t.Fatalf("ScanSpots() error = %v", err)
	}
	if len(spots) != 1 || spots[0].ID != "spot-0" {
		t.Errorf("Expected only the well-formed spot, got %+v", spots)
	}
	if aws.ToInt32(client.scans[0].Limit) != 50 {
		t.Errorf("Expected scan limit 50, got %d", aws.ToInt32(client.scans[0].Limit))
	}
}

func TestScanSpotsFlagsMissingFeeAndDistance(t *testing.T) {
	full, err := attributevalue.MarshalMap(testSpots(1)[0])
	if err != nil {
		t.Fatalf("failed to marshal spot: %v", err)
	}
	partial := map[string]types.AttributeValue{
		"id":   &types.AttributeValueMemberS{Value: "legacy"},
		"name": &types.AttributeValueMemberS{Value: "旧駐輪場"},
		"fees": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"monthly": &types.AttributeValueMemberN{Value: "2000"},
		}},
	}
	client := &fakeDynamoDB{scanItems: []map[string]types.AttributeValue{full, partial}}

	spots, err := newTestStore(client).ScanSpots(context.Background(), 0)
	if err != nil {
		t.Fatalf("ScanSpots() error = %v", err)
	}
	if len(spots) != 2 {
		t.Fatalf("Expected 2 spots, got %d", len(spots))
	}
	if spots[0].DailyFeeMissing || spots[0].DistanceMissing {
		t.Errorf("Expected complete spot to have no missing fields, got %+v", spots[0])
	}
	if !spots[1].DailyFeeMissing || !spots[1].DistanceMissing {
		t.Errorf("Expected missing fee and distance to be flagged, got %+v", spots[1])
	}
}

func TestScanItemsAndPutItem(t *testing.T) {
	raw, err := attributevalue.MarshalMap(map[string]interface{}{
		"id":    "legacy-1",
		"name":  "旧駐輪場",
		"total": 120,
	})
	if err != nil {
		t.Fatalf("failed to marshal item: %v", err)
	}
	client := &fakeDynamoDB{scanItems: []map[string]types.AttributeValue{raw}}
	store := newTestStore(client)

	items, err := store.ScanItems(context.Background())
	if err != nil {
		t.Fatalf("ScanItems() error = %v", err)
	}
	if len(items) != 1 || items[0].ID() != "legacy-1" {
		t.Fatalf("Unexpected items: %+v", items)
	}
	if total, ok := items[0]["total"].(float64); !ok || total != 120 {
		t.Errorf("Expected numeric total 120, got %#v", items[0]["total"])
	}

	if err := store.PutItem(context.Background(), items[0]); err != nil {
		t.Fatalf("PutItem() error = %v", err)
	}
	if aws.ToString(client.puts[0].TableName) != "spots-test" {
		t.Errorf("Expected spots table, got %s", aws.ToString(client.puts[0].TableName))
	}
}
