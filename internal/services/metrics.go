package services

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"toshima-parking-finder/internal/models"
)

// ScrapeMetrics tracks per-station results and field coverage for one scraping run.
// Safe for concurrent use by the station workers.
type ScrapeMetrics struct {
	mu sync.RWMutex

	TotalStations      int64                     `json:"total_stations"`
	SuccessfulStations int64                     `json:"successful_stations"`
	FailedStations     int64                     `json:"failed_stations"`
	TotalFacilities    int64                     `json:"total_facilities"`
	Stations           map[string]*StationMetric `json:"stations"`
	Coverage           models.FieldCoverage      `json:"coverage"`
	Thresholds         AlertThresholds           `json:"thresholds"`
	StartedAt          time.Time                 `json:"started_at"`
}

// StationMetric tracks one station page
type StationMetric struct {
	Station          string  `json:"station"`
	URL              string  `json:"url"`
	Attempts         int64   `json:"attempts"`
	Successes        int64   `json:"successes"`
	Failures         int64   `json:"failures"`
	FacilitiesFound  int64   `json:"facilities_found"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
	LastError        string  `json:"last_error,omitempty"`
}

// AlertThresholds defines when a run is reported as degraded
type AlertThresholds struct {
	MinSuccessRate      float64 `json:"min_success_rate"`
	MinAddressCoverage  float64 `json:"min_address_coverage"`
	MaxProcessingTimeMs int64   `json:"max_processing_time_ms"`
}

// ScrapeAlert represents an alert condition
type ScrapeAlert struct {
	Type      string  `json:"type"`     // success_rate|empty_station|coverage|processing_time
	Severity  string  `json:"severity"` // warning|error
	Message   string  `json:"message"`
	Station   string  `json:"station,omitempty"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// NewScrapeMetrics creates metrics for a run starting now
func NewScrapeMetrics(now time.Time) *ScrapeMetrics {
	return &ScrapeMetrics{
		Stations: make(map[string]*StationMetric),
		Thresholds: AlertThresholds{
			MinSuccessRate:      0.8,
			MinAddressCoverage:  0.5,
			MaxProcessingTimeMs: 30000,
		},
		StartedAt: now,
	}
}

// RecordStation records the outcome of one station page
func (m *ScrapeMetrics) RecordStation(result models.StationResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalStations++
	metric := m.Stations[result.Station]
	if metric == nil {
		metric = &StationMetric{Station: result.Station, URL: result.URL}
		m.Stations[result.Station] = metric
	}
	metric.Attempts++
	metric.ProcessingTimeMs = float64(result.ProcessingTime.Nanoseconds()) / 1e6

	if result.Success {
		m.SuccessfulStations++
		m.TotalFacilities += int64(result.FacilitiesFound)
		metric.Successes++
		metric.FacilitiesFound += int64(result.FacilitiesFound)
	} else {
		m.FailedStations++
		metric.Failures++
		metric.LastError = result.Error
	}

	log.Printf("[METRICS] Recorded station: %s, Success=%t, Facilities=%d, Time=%.1fms",
		result.Station, result.Success, result.FacilitiesFound, metric.ProcessingTimeMs)
}

// RecordFacilities adds records to the field coverage counts
func (m *ScrapeMetrics) RecordFacilities(records []models.FacilityRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		m.Coverage.Add(r)
	}
}

// SuccessRate returns the share of successful stations
func (m *ScrapeMetrics) SuccessRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.successRate()
}

func (m *ScrapeMetrics) successRate() float64 {
	if m.TotalStations == 0 {
		return 0
	}
	return float64(m.SuccessfulStations) / float64(m.TotalStations)
}

// CoverageSnapshot returns a copy of the field coverage
func (m *ScrapeMetrics) CoverageSnapshot() models.FieldCoverage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Coverage
}

// CheckAlerts returns the alert conditions of the run so far
func (m *ScrapeMetrics) CheckAlerts() []ScrapeAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var alerts []ScrapeAlert

	if m.TotalStations > 0 {
		rate := m.successRate()
		if rate < m.Thresholds.MinSuccessRate {
			alerts = append(alerts, ScrapeAlert{
				Type:      "success_rate",
				Severity:  "error",
				Message:   fmt.Sprintf("Station success rate (%.1f%%) is below threshold (%.1f%%)", rate*100, m.Thresholds.MinSuccessRate*100),
				Value:     rate,
				Threshold: m.Thresholds.MinSuccessRate,
			})
		}
	}

	if m.Coverage.Records > 0 {
		rate := m.Coverage.Rate(m.Coverage.Address)
		if rate < m.Thresholds.MinAddressCoverage {
			alerts = append(alerts, ScrapeAlert{
				Type:      "coverage",
				Severity:  "warning",
				Message:   fmt.Sprintf("Address coverage (%.1f%%) is below threshold (%.1f%%)", rate*100, m.Thresholds.MinAddressCoverage*100),
				Value:     rate,
				Threshold: m.Thresholds.MinAddressCoverage,
			})
		}
	}

	for _, name := range m.stationNames() {
		metric := m.Stations[name]
		if metric.Successes > 0 && metric.FacilitiesFound == 0 {
			alerts = append(alerts, ScrapeAlert{
				Type:     "empty_station",
				Severity: "warning",
				Message:  fmt.Sprintf("Station %s returned no facilities", name),
				Station:  name,
			})
		}
		if metric.ProcessingTimeMs > float64(m.Thresholds.MaxProcessingTimeMs) {
			alerts = append(alerts, ScrapeAlert{
				Type:      "processing_time",
				Severity:  "warning",
				Message:   fmt.Sprintf("Station %s processing time (%.1fms) exceeds threshold (%dms)", name, metric.ProcessingTimeMs, m.Thresholds.MaxProcessingTimeMs),
				Station:   name,
				Value:     metric.ProcessingTimeMs,
				Threshold: float64(m.Thresholds.MaxProcessingTimeMs),
			})
		}
	}

	return alerts
}

func (m *ScrapeMetrics) stationNames() []string {
	names := make([]string, 0, len(m.Stations))
	for name := range m.Stations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SummaryMessage renders the run for a LINE notification
func (m *ScrapeMetrics) SummaryMessage() string {
	alerts := m.CheckAlerts()

	m.mu.RLock()
	defer m.mu.RUnlock()

	msg := fmt.Sprintf("豊島区駐輪場データ更新\n駅ページ: %d/%d 成功\n施設: %d 件\n住所 %d / 料金 %d / 利用時間 %d",
		m.SuccessfulStations, m.TotalStations, m.TotalFacilities,
		m.Coverage.Address, m.Coverage.Fee, m.Coverage.Hours)

	for _, name := range m.stationNames() {
		if metric := m.Stations[name]; metric.Failures > 0 && metric.Successes == 0 {
			msg += fmt.Sprintf("\n失敗: %s", name)
		}
	}
	if len(alerts) > 0 {
		msg += fmt.Sprintf("\n警告: %d 件", len(alerts))
	}
	return msg
}

// LogSummary logs a summary of the run
func (m *ScrapeMetrics) LogSummary() {
	alerts := m.CheckAlerts()

	m.mu.RLock()
	defer m.mu.RUnlock()

	log.Printf("[METRICS] === SCRAPE METRICS SUMMARY ===")
	log.Printf("[METRICS] Stations: %d (Success: %d, Failed: %d, Rate: %.1f%%)",
		m.TotalStations, m.SuccessfulStations, m.FailedStations, m.successRate()*100)
	log.Printf("[METRICS] Facilities: %d (address %d, phone %d, hours %d, fee %d, capacity %d)",
		m.TotalFacilities, m.Coverage.Address, m.Coverage.Phone, m.Coverage.Hours, m.Coverage.Fee, m.Coverage.Capacity)
	for _, alert := range alerts {
		log.Printf("[METRICS] ALERT [%s]: %s", alert.Severity, alert.Message)
	}
	log.Printf("[METRICS] ==============================")
}
