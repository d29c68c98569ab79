package models

import (
	"encoding/json"
	"time"
)

// VehicleSupport tells whether motorized bikes (原付) may use a facility
type VehicleSupport string

const (
	VehicleSupportAvailable   VehicleSupport = "available"
	VehicleSupportUnavailable VehicleSupport = "unavailable"
	VehicleSupportUnknown     VehicleSupport = ""
)

// Labels used on the ward pages and in the published JSON
const (
	VehicleSupportAvailableLabel   = "利用可能"
	VehicleSupportUnavailableLabel = "利用不可"
)

// Sentinel values produced by the normalizer
const (
	HoursAllDay         = "24時間"
	HoursDayUse         = "当日利用可能"
	FeeSubscriptionOnly = "定期利用のみ"
)

// Label returns the Japanese label for the support value
func (v VehicleSupport) Label() string {
	switch v {
	case VehicleSupportAvailable:
		return VehicleSupportAvailableLabel
	case VehicleSupportUnavailable:
		return VehicleSupportUnavailableLabel
	default:
		return ""
	}
}

// MarshalJSON writes the Japanese label
func (v VehicleSupport) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Label())
}

// UnmarshalJSON accepts either the label or the enum value
func (v *VehicleSupport) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	*v = ParseVehicleSupport(label)
	return nil
}

// ParseVehicleSupport maps a Japanese label (or the enum value itself) back to VehicleSupport
func ParseVehicleSupport(label string) VehicleSupport {
	switch label {
	case VehicleSupportAvailableLabel, string(VehicleSupportAvailable):
		return VehicleSupportAvailable
	case VehicleSupportUnavailableLabel, string(VehicleSupportUnavailable):
		return VehicleSupportUnavailable
	default:
		return VehicleSupportUnknown
	}
}

// FacilityRecord is one normalized parking facility scraped from a ward page.
// Field names in JSON follow the vocabulary of the published data set.
type FacilityRecord struct {
	Name           string         `json:"駐輪場名" dynamodbav:"name"`
	Address        string         `json:"住所" dynamodbav:"address"`
	Phone          string         `json:"電話番号" dynamodbav:"phone"`
	Hours          string         `json:"利用時間" dynamodbav:"hours"`
	Fee            string         `json:"料金" dynamodbav:"fee"`
	VehicleSupport VehicleSupport `json:"原付対応" dynamodbav:"vehicle_support"`
	Capacity       string         `json:"収容台数" dynamodbav:"capacity"`

	// Set by the scraper, not by the normalizer
	Station    string `json:"station,omitempty" dynamodbav:"station,omitempty"`
	FacilityID string `json:"facility_id,omitempty" dynamodbav:"facility_id,omitempty"`
}

// HasDetails reports whether at least one descriptive field is present
func (r FacilityRecord) HasDetails() bool {
	return r.Address != "" || r.Phone != "" || r.Hours != "" || r.Fee != ""
}

// StoredFacility is the DynamoDB item for a facility record.
// Items are overwritten on every rescan and never deleted.
type StoredFacility struct {
	PK string `dynamodbav:"PK"` // FACILITY#<facility_id>
	SK string `dynamodbav:"SK"` // METADATA

	FacilityRecord
	VehicleSupportLabel string `dynamodbav:"vehicle_support_label"`

	StationKey string    `dynamodbav:"StationKey"` // STATION#<station>
	RunID      string    `dynamodbav:"run_id"`
	SourceURL  string    `dynamodbav:"source_url"`
	ScrapedAt  time.Time `dynamodbav:"scraped_at"`
}

// NewStoredFacility builds the persisted form of a record
func NewStoredFacility(record FacilityRecord, runID, sourceURL string, scrapedAt time.Time) StoredFacility {
	if record.FacilityID == "" {
		record.FacilityID = GenerateFacilityID(record.Station, record.Name)
	}
	return StoredFacility{
		PK:                  CreateFacilityPK(record.FacilityID),
		SK:                  SortKeyMetadata,
		FacilityRecord:      record,
		VehicleSupportLabel: record.VehicleSupport.Label(),
		StationKey:          GenerateStationKey(record.Station),
		RunID:               runID,
		SourceURL:           sourceURL,
		ScrapedAt:           scrapedAt,
	}
}

const SortKeyMetadata = "METADATA"

func CreateFacilityPK(facilityID string) string {
	return "FACILITY#" + facilityID
}

func GenerateStationKey(station string) string {
	return "STATION#" + station
}
