package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"toshima-parking-finder/internal/models"
)

// StationLister lists the station pages to scrape
type StationLister interface {
	Stations(ctx context.Context) ([]models.Station, error)
}

// StationEnqueuer hands station pages to the workers
type StationEnqueuer interface {
	EnqueueStations(ctx context.Context, tasks []models.StationTask) (int, error)
}

// ResultPublisher stores the data set and the run report
type ResultPublisher interface {
	PublishFacilities(ctx context.Context, output models.FacilitiesOutput, at time.Time) ([]*S3UploadResult, error)
	UploadScrapingRun(ctx context.Context, run *models.ScrapingRun) (*S3UploadResult, error)
}

// Notifier delivers the run summary
type Notifier interface {
	Send(ctx context.Context, texts []string) error
}

// RunOptions selects what a scraping run covers
type RunOptions struct {
	TriggerType   string
	StationFilter []string // station names, labels or URLs; empty means all
	RequestID     string
}

// ScrapingOrchestrator handles the complete scraping workflow: discover the station pages,
// scrape them inline or hand them to the queue, then publish and report
type ScrapingOrchestrator struct {
	directory StationLister
	scraper   *StationScraper
	queue     StationEnqueuer
	publisher ResultPublisher
	notifier  Notifier
	now       func() time.Time
}

// NewScrapingOrchestrator creates an orchestrator scraping inline without publishing
func NewScrapingOrchestrator(directory StationLister, scraper *StationScraper) *ScrapingOrchestrator {
	return &ScrapingOrchestrator{
		directory: directory,
		scraper:   scraper,
		now:       time.Now,
	}
}

// SetQueue switches the orchestrator to fan-out mode
func (o *ScrapingOrchestrator) SetQueue(queue StationEnqueuer) {
	o.queue = queue
}

// SetPublisher uploads results after inline runs
func (o *ScrapingOrchestrator) SetPublisher(publisher ResultPublisher) {
	o.publisher = publisher
}

// SetNotifier sends the summary of inline runs
func (o *ScrapingOrchestrator) SetNotifier(notifier Notifier) {
	o.notifier = notifier
}

// Run executes one scraping run. Failures of single stations, uploads and notifications
// are recorded as warnings; an error is returned only when nothing could be scraped or queued.
func (o *ScrapingOrchestrator) Run(ctx context.Context, opts RunOptions) (*models.ScrapingRun, []models.FacilityRecord, error) {
	startedAt := o.now()
	run := &models.ScrapingRun{
		ID:              models.GenerateScrapingRunID(startedAt),
		StartedAt:       startedAt,
		Status:          models.ScrapingStatusRunning,
		TriggerType:     opts.TriggerType,
		LambdaRequestId: opts.RequestID,
		Results:         []models.StationResult{},
	}

	stations, err := o.directory.Stations(ctx)
	if err != nil {
		log.Printf("Warning: %v", err)
		run.Warnings = append(run.Warnings, err.Error())
	}

	stations = FilterStations(stations, opts.StationFilter)
	if len(stations) == 0 {
		run.Finish(o.now())
		return run, nil, fmt.Errorf("no station pages to scrape")
	}
	if len(opts.StationFilter) > 0 {
		log.Printf("Filtered to %d stations based on filter", len(stations))
	}

	if o.queue != nil {
		return o.enqueue(ctx, run, stations)
	}

	metrics := NewScrapeMetrics(startedAt)
	records, results := o.scraper.ScrapeAll(ctx, run.ID, stations, metrics)
	run.Results = results
	run.Finish(o.now())
	coverage := metrics.CoverageSnapshot()
	run.Coverage = &coverage

	for _, alert := range metrics.CheckAlerts() {
		run.Warnings = append(run.Warnings, alert.Message)
	}

	o.publish(ctx, run, records)
	metrics.LogSummary()

	if o.notifier != nil {
		if err := o.notifier.Send(ctx, []string{metrics.SummaryMessage()}); err != nil {
			log.Printf("Warning: failed to send run summary: %v", err)
			run.Warnings = append(run.Warnings, fmt.Sprintf("notification failed: %v", err))
		}
	}

	log.Printf("Scraping run %s %s: %d facilities from %d/%d stations",
		run.ID, run.Status, run.TotalFacilities, run.SuccessfulStations, run.TotalStations)
	return run, records, nil
}

func (o *ScrapingOrchestrator) enqueue(ctx context.Context, run *models.ScrapingRun, stations []models.Station) (*models.ScrapingRun, []models.FacilityRecord, error) {
	tasks := make([]models.StationTask, 0, len(stations))
	for _, st := range stations {
		tasks = append(tasks, models.StationTask{
			TaskID:    "task_" + uuid.NewString(),
			RunID:     run.ID,
			Station:   st,
			CreatedAt: run.StartedAt,
		})
	}

	sent, err := o.queue.EnqueueStations(ctx, tasks)
	run.TotalStations = len(stations)
	run.CompletedAt = o.now()
	run.Duration = run.CompletedAt.Sub(run.StartedAt).Milliseconds()
	if err != nil {
		run.Status = models.ScrapingStatusFailed
		if sent > 0 {
			run.Status = models.ScrapingStatusPartial
		}
		run.Warnings = append(run.Warnings, fmt.Sprintf("queued %d/%d stations: %v", sent, len(tasks), err))
		if sent == 0 {
			return run, nil, fmt.Errorf("failed to enqueue stations: %w", err)
		}
		return run, nil, nil
	}

	run.Status = models.ScrapingStatusQueued
	log.Printf("Queued %d station tasks for run %s", sent, run.ID)
	return run, nil, nil
}

func (o *ScrapingOrchestrator) publish(ctx context.Context, run *models.ScrapingRun, records []models.FacilityRecord) {
	if o.publisher == nil {
		return
	}

	if len(records) > 0 {
		output := models.NewFacilitiesOutput(records, run.ID, run.CompletedAt)
		uploads, err := o.publisher.PublishFacilities(ctx, output, run.CompletedAt)
		for _, u := range uploads {
			run.UploadedFiles = append(run.UploadedFiles, u.Key)
			log.Printf("Uploaded facilities: %s", u.PublicURL)
		}
		if err != nil {
			log.Printf("Warning: failed to upload facilities: %v", err)
			run.Warnings = append(run.Warnings, err.Error())
		}
	} else {
		log.Printf("Warning: no facilities scraped, keeping the previous data set")
	}

	result, err := o.publisher.UploadScrapingRun(ctx, run)
	if err != nil {
		log.Printf("Warning: failed to upload scraping run: %v", err)
		run.Warnings = append(run.Warnings, err.Error())
		return
	}
	run.UploadedFiles = append(run.UploadedFiles, result.Key)
	log.Printf("Uploaded scraping run: %s", result.Key)
}

// FilterStations keeps the stations matching any filter by name, label or URL.
// An empty filter keeps every station.
func FilterStations(stations []models.Station, filter []string) []models.Station {
	if len(filter) == 0 {
		return stations
	}

	var kept []models.Station
	for _, st := range stations {
		for _, f := range filter {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if st.Name == f || StationLabel(st.Name) == f || st.URL == f || strings.HasSuffix(st.URL, "/"+f) {
				kept = append(kept, st)
				break
			}
		}
	}
	return kept
}
