package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"toshima-parking-finder/internal/models"
	"toshima-parking-finder/internal/normalizer"
)

// FacilityStore persists the facilities of one station page
type FacilityStore interface {
	PutFacilities(ctx context.Context, records []models.FacilityRecord, runID, sourceURL string, scrapedAt time.Time) (int, error)
}

// RawArchiver keeps the fetched HTML of a station page
type RawArchiver interface {
	ArchiveRawHTML(ctx context.Context, runID, pageURL string, body []byte) (*S3UploadResult, error)
}

const defaultScraperConcurrency = 3

// StationScraper fetches station pages, normalizes their facilities and stores them
type StationScraper struct {
	fetcher     Fetcher
	store       FacilityStore
	archive     RawArchiver
	concurrency int
	now         func() time.Time
}

// NewStationScraper creates a scraper running at most concurrency stations at once.
// Storage and archiving stay off until configured.
func NewStationScraper(fetcher Fetcher, concurrency int) *StationScraper {
	if concurrency <= 0 {
		concurrency = defaultScraperConcurrency
	}
	return &StationScraper{
		fetcher:     fetcher,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// SetStore enables upserting facilities
func (s *StationScraper) SetStore(store FacilityStore) {
	s.store = store
}

// SetArchive enables raw HTML archiving
func (s *StationScraper) SetArchive(archive RawArchiver) {
	s.archive = archive
}

// ScrapeStation processes one station page. A failed fetch marks the result unsuccessful;
// storage and archive failures are logged and leave the result successful.
func (s *StationScraper) ScrapeStation(ctx context.Context, runID string, station models.Station) ([]models.FacilityRecord, models.StationResult) {
	return s.scrapeStation(ctx, runID, station, nil)
}

func (s *StationScraper) scrapeStation(ctx context.Context, runID string, station models.Station, metrics *ScrapeMetrics) ([]models.FacilityRecord, models.StationResult) {
	start := s.now()
	label := StationLabel(station.Name)
	result := models.StationResult{
		Station: label,
		URL:     station.URL,
	}

	log.Printf("Starting to scrape station: %s (%s)", station.Name, station.URL)

	page, err := s.fetcher.Fetch(ctx, station.URL)
	if err != nil {
		result.Error = fmt.Sprintf("Page fetch failed: %v", err)
		result.ProcessingTime = s.now().Sub(start)
		log.Printf("Failed to fetch %s: %v", station.Name, err)
		record(metrics, result, nil)
		return nil, result
	}

	records, err := normalizer.ParsePage(bytes.NewReader(page.Body))
	if err != nil {
		result.Error = fmt.Sprintf("Page parse failed: %v", err)
		result.ProcessingTime = s.now().Sub(start)
		log.Printf("Failed to parse %s: %v", station.Name, err)
		record(metrics, result, nil)
		return nil, result
	}

	for i := range records {
		records[i].Station = label
		records[i].FacilityID = models.GenerateFacilityID(label, records[i].Name)
	}

	if s.archive != nil {
		if _, err := s.archive.ArchiveRawHTML(ctx, runID, station.URL, page.Body); err != nil {
			log.Printf("Warning: failed to archive HTML of %s: %v", station.Name, err)
		}
	}

	if s.store != nil && len(records) > 0 {
		stored, err := s.store.PutFacilities(ctx, records, runID, station.URL, page.FetchedAt)
		if err != nil {
			log.Printf("Warning: stored %d/%d facilities of %s: %v", stored, len(records), station.Name, err)
		}
		result.StoredFacilities = stored
	}

	result.Success = true
	result.FacilitiesFound = len(records)
	result.ProcessingTime = s.now().Sub(start)
	log.Printf("Successfully scraped %s: %d facilities", station.Name, len(records))

	record(metrics, result, records)
	return records, result
}

func record(metrics *ScrapeMetrics, result models.StationResult, records []models.FacilityRecord) {
	if metrics == nil {
		return
	}
	metrics.RecordStation(result)
	metrics.RecordFacilities(records)
}

// ScrapeAll scrapes every station with bounded concurrency, recording each one into
// metrics when it is not nil. Records and results keep the order of stations.
func (s *StationScraper) ScrapeAll(ctx context.Context, runID string, stations []models.Station, metrics *ScrapeMetrics) ([]models.FacilityRecord, []models.StationResult) {
	log.Printf("Starting scraping run %s with %d stations", runID, len(stations))

	var wg sync.WaitGroup
	results := make([]models.StationResult, len(stations))
	perStation := make([][]models.FacilityRecord, len(stations))

	semaphore := make(chan struct{}, s.concurrency)

	for i, station := range stations {
		wg.Add(1)
		go func(index int, st models.Station) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			perStation[index], results[index] = s.scrapeStation(ctx, runID, st, metrics)
		}(i, station)
	}

	wg.Wait()
	log.Printf("Completed scraping all stations")

	var all []models.FacilityRecord
	for _, records := range perStation {
		all = append(all, records...)
	}
	return all, results
}
