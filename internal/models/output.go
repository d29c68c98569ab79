package models

import "time"

// FacilitiesOutput is the published JSON document of every scraped facility
type FacilitiesOutput struct {
	Metadata   FacilitiesMetadata `json:"metadata"`
	Facilities []FacilityRecord   `json:"facilities"`
}

// FacilitiesMetadata describes one published data set
type FacilitiesMetadata struct {
	GeneratedAt     time.Time `json:"generated_at"`
	RunID           string    `json:"run_id,omitempty"`
	TotalFacilities int       `json:"total_facilities"`
	Stations        []string  `json:"stations"`
	Coverage        string    `json:"coverage"`
}

// NewFacilitiesOutput wraps records with metadata listing the stations they came from,
// in first-seen order
func NewFacilitiesOutput(records []FacilityRecord, runID string, generatedAt time.Time) FacilitiesOutput {
	var stations []string
	seen := make(map[string]bool)
	for _, r := range records {
		if r.Station != "" && !seen[r.Station] {
			seen[r.Station] = true
			stations = append(stations, r.Station)
		}
	}

	if records == nil {
		records = []FacilityRecord{}
	}

	return FacilitiesOutput{
		Metadata: FacilitiesMetadata{
			GeneratedAt:     generatedAt,
			RunID:           runID,
			TotalFacilities: len(records),
			Stations:        stations,
			Coverage:        "豊島区",
		},
		Facilities: records,
	}
}
