package models

import "time"

// Station is one ward page listing the parking facilities around a station
type Station struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Href string `json:"href,omitempty"`
}

// StationTask is the queue message asking a worker to scrape one station page
type StationTask struct {
	TaskID    string    `json:"task_id"`
	RunID     string    `json:"run_id"`
	Station   Station   `json:"station"`
	CreatedAt time.Time `json:"created_at"`
}

// StationResult is the outcome of scraping one station page
type StationResult struct {
	Station          string        `json:"station"`
	URL              string        `json:"url"`
	Success          bool          `json:"success"`
	FacilitiesFound  int           `json:"facilities_found"`
	StoredFacilities int           `json:"stored_facilities"`
	ProcessingTime   time.Duration `json:"processing_time"`
	Error            string        `json:"error,omitempty"`
}

// ScrapingRun represents a complete scraping operation across all station pages
type ScrapingRun struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
	Duration    int64     `json:"duration,omitempty"` // total duration in milliseconds
	Status      string    `json:"status"`             // running|completed|failed|partial|queued

	TotalStations      int `json:"totalStations"`
	SuccessfulStations int `json:"successfulStations"`
	FailedStations     int `json:"failedStations"`
	TotalFacilities    int `json:"totalFacilities"`
	StoredFacilities   int `json:"storedFacilities"`

	Results []StationResult `json:"results"`

	Coverage *FieldCoverage `json:"coverage,omitempty"`

	UploadedFiles []string `json:"uploadedFiles,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`

	TriggerType     string `json:"triggerType"` // scheduled|manual|queue
	LambdaRequestId string `json:"lambdaRequestId,omitempty"`
}

// FieldCoverage counts how many records carry each optional field
type FieldCoverage struct {
	Records        int `json:"records"`
	Address        int `json:"address"`
	Phone          int `json:"phone"`
	Hours          int `json:"hours"`
	Fee            int `json:"fee"`
	CoinFee        int `json:"coin_fee"` // fee present and not the subscription-only sentinel
	Capacity       int `json:"capacity"`
	VehicleSupport int `json:"vehicle_support"`
}

// Add counts one record
func (c *FieldCoverage) Add(r FacilityRecord) {
	c.Records++
	if r.Address != "" {
		c.Address++
	}
	if r.Phone != "" {
		c.Phone++
	}
	if r.Hours != "" {
		c.Hours++
	}
	if r.Fee != "" {
		c.Fee++
		if r.Fee != FeeSubscriptionOnly {
			c.CoinFee++
		}
	}
	if r.Capacity != "" {
		c.Capacity++
	}
	if r.VehicleSupport != VehicleSupportUnknown {
		c.VehicleSupport++
	}
}

// Rate returns count/records, 0 when empty
func (c *FieldCoverage) Rate(count int) float64 {
	if c.Records == 0 {
		return 0
	}
	return float64(count) / float64(c.Records)
}

// Finish closes the run and derives its status from the station results
func (r *ScrapingRun) Finish(now time.Time) {
	r.CompletedAt = now
	r.Duration = now.Sub(r.StartedAt).Milliseconds()
	r.TotalStations = len(r.Results)
	r.SuccessfulStations = 0
	r.FailedStations = 0
	r.TotalFacilities = 0
	r.StoredFacilities = 0
	for _, res := range r.Results {
		if res.Success {
			r.SuccessfulStations++
			r.TotalFacilities += res.FacilitiesFound
			r.StoredFacilities += res.StoredFacilities
		} else {
			r.FailedStations++
		}
	}

	switch {
	case r.TotalStations == 0 || r.SuccessfulStations == 0:
		r.Status = ScrapingStatusFailed
	case r.FailedStations > 0:
		r.Status = ScrapingStatusPartial
	default:
		r.Status = ScrapingStatusCompleted
	}
}

// Scraping status constants
const (
	ScrapingStatusRunning   = "running"
	ScrapingStatusCompleted = "completed"
	ScrapingStatusFailed    = "failed"
	ScrapingStatusPartial   = "partial"
	ScrapingStatusQueued    = "queued"
)

// Trigger type constants
const (
	TriggerTypeScheduled = "scheduled"
	TriggerTypeManual    = "manual"
	TriggerTypeQueue     = "queue"
)
