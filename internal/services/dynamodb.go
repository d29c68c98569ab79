package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"toshima-parking-finder/internal/models"
)

// DynamoDBAPI is the subset of *dynamodb.Client used by ParkingStore
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// ErrNotFound is returned when an item does not exist
var ErrNotFound = errors.New("item not found")

// Facilities table secondary index on StationKey
const stationIndexName = "station-index"

// BatchWriteItem accepts at most 25 requests
const maxBatchWriteItems = 25

const maxUnprocessedRetries = 3

// ParkingStore reads and writes the spots and facilities tables
type ParkingStore struct {
	client          DynamoDBAPI
	spotsTable      string
	facilitiesTable string
}

// NewParkingStore creates a new store
func NewParkingStore(client DynamoDBAPI, spotsTable, facilitiesTable string) *ParkingStore {
	return &ParkingStore{
		client:          client,
		spotsTable:      spotsTable,
		facilitiesTable: facilitiesTable,
	}
}

// SpotsTable returns the spots table name
func (s *ParkingStore) SpotsTable() string {
	return s.spotsTable
}

// Facilities Table Operations

// PutFacility stores a facility, replacing the previous scan of it
func (s *ParkingStore) PutFacility(ctx context.Context, facility models.StoredFacility) error {
	item, err := attributevalue.MarshalMap(facility)
	if err != nil {
		return fmt.Errorf("failed to marshal facility: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.facilitiesTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put facility %s: %w", facility.FacilityID, err)
	}

	return nil
}

// PutFacilities upserts the records of one station page and returns how many were stored.
// Records that fail are logged and skipped.
func (s *ParkingStore) PutFacilities(ctx context.Context, records []models.FacilityRecord, runID, sourceURL string, scrapedAt time.Time) (int, error) {
	stored := 0
	var firstErr error
	for _, record := range records {
		facility := models.NewStoredFacility(record, runID, sourceURL, scrapedAt)
		if err := s.PutFacility(ctx, facility); err != nil {
			log.Printf("Failed to store facility %s: %v", record.Name, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stored++
	}
	return stored, firstErr
}

// QueryFacilities returns stored facility records, for one station when station is set.
// A non-positive limit returns everything.
func (s *ParkingStore) QueryFacilities(ctx context.Context, station string, limit int32) ([]models.FacilityRecord, error) {
	var stored []models.StoredFacility

	if station != "" {
		input := &dynamodb.QueryInput{
			TableName:              aws.String(s.facilitiesTable),
			IndexName:              aws.String(stationIndexName),
			KeyConditionExpression: aws.String("StationKey = :stationKey"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":stationKey": &types.AttributeValueMemberS{Value: models.GenerateStationKey(station)},
			},
		}
		if limit > 0 {
			input.Limit = aws.Int32(limit)
		}

		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query facilities: %w", err)
		}
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal facilities: %w", err)
		}
	} else {
		items, err := s.scanAll(ctx, s.facilitiesTable, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to scan facilities: %w", err)
		}
		if err := attributevalue.UnmarshalListOfMaps(items, &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal facilities: %w", err)
		}
	}

	records := make([]models.FacilityRecord, 0, len(stored))
	for _, f := range stored {
		records = append(records, f.FacilityRecord)
	}
	return records, nil
}

// Spots Table Operations

// BatchPutSpots writes spots in chunks of 25, replacing existing items
func (s *ParkingStore) BatchPutSpots(ctx context.Context, spots []models.ParkingSpot) (int, error) {
	written := 0
	for start := 0; start < len(spots); start += maxBatchWriteItems {
		end := min(start+maxBatchWriteItems, len(spots))

		requests := make([]types.WriteRequest, 0, end-start)
		for _, spot := range spots[start:end] {
			item, err := attributevalue.MarshalMap(spot)
			if err != nil {
				return written, fmt.Errorf("failed to marshal spot %s: %w", spot.ID, err)
			}
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		if err := s.batchWrite(ctx, requests); err != nil {
			return written, err
		}
		written += len(requests)
	}
	return written, nil
}

func (s *ParkingStore) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.spotsTable: requests}

	for attempt := 0; len(pending[s.spotsTable]) > 0; attempt++ {
		if attempt > maxUnprocessedRetries {
			return fmt.Errorf("failed to write %d spots after %d retries", len(pending[s.spotsTable]), maxUnprocessedRetries)
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}

		result, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("failed to batch write spots: %w", err)
		}
		pending = result.UnprocessedItems
		if pending == nil {
			break
		}
	}
	return nil
}

// ScanSpots returns spots from the spots table. A positive limit reads a single page of at
// most limit items; otherwise every page is read.
func (s *ParkingStore) ScanSpots(ctx context.Context, limit int32) ([]models.ParkingSpot, error) {
	items, err := s.scanAll(ctx, s.spotsTable, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan spots: %w", err)
	}

	spots := make([]models.ParkingSpot, 0, len(items))
	for _, item := range items {
		var spot models.ParkingSpot
		if err := attributevalue.UnmarshalMap(item, &spot); err != nil {
			log.Printf("Skipping malformed spot: %v", err)
			continue
		}
		markMissingFields(item, &spot)
		spots = append(spots, spot)
	}
	return spots, nil
}

// markMissingFields flags the attributes the chat filters rank as unknown
func markMissingFields(item map[string]types.AttributeValue, spot *models.ParkingSpot) {
	_, hasDistance := item["distance"]
	spot.DistanceMissing = !hasDistance

	spot.DailyFeeMissing = true
	if fees, ok := item["fees"].(*types.AttributeValueMemberM); ok {
		_, hasDaily := fees.Value["daily"]
		spot.DailyFeeMissing = !hasDaily
	}
}

// GetSpot retrieves a spot by id
func (s *ParkingStore) GetSpot(ctx context.Context, id string) (*models.ParkingSpot, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.spotsTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get spot: %w", err)
	}

	if result.Item == nil {
		return nil, ErrNotFound
	}

	var spot models.ParkingSpot
	if err := attributevalue.UnmarshalMap(result.Item, &spot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal spot: %w", err)
	}
	markMissingFields(result.Item, &spot)

	return &spot, nil
}

// ScanItems returns every spots-table item without a schema, for migration
func (s *ParkingStore) ScanItems(ctx context.Context) ([]models.Item, error) {
	raw, err := s.scanAll(ctx, s.spotsTable, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to scan items: %w", err)
	}

	items := make([]models.Item, 0, len(raw))
	for _, r := range raw {
		var item map[string]interface{}
		if err := attributevalue.UnmarshalMap(r, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item: %w", err)
		}
		items = append(items, models.Item(item))
	}
	return items, nil
}

// PutItem writes a schemaless item to the spots table
func (s *ParkingStore) PutItem(ctx context.Context, item models.Item) error {
	av, err := attributevalue.MarshalMap(map[string]interface{}(item))
	if err != nil {
		return fmt.Errorf("failed to marshal item %s: %w", item.ID(), err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.spotsTable),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put item %s: %w", item.ID(), err)
	}
	return nil
}

func (s *ParkingStore) scanAll(ctx context.Context, table string, limit int32) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(table)}

	if limit > 0 {
		input.Limit = aws.Int32(limit)
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, err
		}
		return result.Items, nil
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}
