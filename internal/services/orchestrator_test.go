package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"toshima-parking-finder/internal/models"
)

type fixedStations struct {
	stations []models.Station
	err      error
}

func (f *fixedStations) Stations(ctx context.Context) ([]models.Station, error) {
	return f.stations, f.err
}

type recordingPublisher struct {
	outputs []models.FacilitiesOutput
	runs    []*models.ScrapingRun
	err     error
}

func (p *recordingPublisher) PublishFacilities(ctx context.Context, output models.FacilitiesOutput, at time.Time) ([]*S3UploadResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.outputs = append(p.outputs, output)
	return []*S3UploadResult{{Key: LatestFacilitiesKey}, {Key: "facilities/backup.json"}}, nil
}

func (p *recordingPublisher) UploadScrapingRun(ctx context.Context, run *models.ScrapingRun) (*S3UploadResult, error) {
	p.runs = append(p.runs, run)
	return &S3UploadResult{Key: "scraping-runs/run.json"}, nil
}

type recordingNotifier struct {
	texts []string
}

func (n *recordingNotifier) Send(ctx context.Context, texts []string) error {
	n.texts = append(n.texts, texts...)
	return nil
}

type recordingQueue struct {
	tasks []models.StationTask
	err   error
}

func (q *recordingQueue) EnqueueStations(ctx context.Context, tasks []models.StationTask) (int, error) {
	if q.err != nil {
		return 0, q.err
	}
	q.tasks = append(q.tasks, tasks...)
	return len(tasks), nil
}

func orchestratorStations() []models.Station {
	return []models.Station{
		{Name: "池袋駅周辺（東口）", URL: "http://ward.test/022249.html"},
		{Name: "大塚駅周辺", URL: "http://ward.test/022252.html"},
		{Name: "目白駅周辺", URL: "http://ward.test/022255.html"},
	}
}

func newTestOrchestrator(directory StationLister) *ScrapingOrchestrator {
	stations := orchestratorStations()
	fetcher := &fakeFetcher{pages: map[string]string{
		stations[0].URL: stationPageHTML,
		stations[2].URL: stationPageHTML,
	}}
	o := NewScrapingOrchestrator(directory, NewStationScraper(fetcher, 2))
	o.now = func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) }
	return o
}

func TestOrchestratorRunInline(t *testing.T) {
	o := newTestOrchestrator(&fixedStations{stations: orchestratorStations()})
	publisher := &recordingPublisher{}
	notifier := &recordingNotifier{}
	o.SetPublisher(publisher)
	o.SetNotifier(notifier)

	run, records, err := o.Run(context.Background(), RunOptions{TriggerType: models.TriggerTypeManual})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if run.Status != models.ScrapingStatusPartial {
		t.Errorf("Expected partial run, got %s", run.Status)
	}
	if run.TotalStations != 3 || run.SuccessfulStations != 2 || run.TotalFacilities != 4 {
		t.Errorf("Unexpected counts %d/%d/%d", run.TotalStations, run.SuccessfulStations, run.TotalFacilities)
	}
	if len(records) != 4 {
		t.Errorf("Expected 4 records, got %d", len(records))
	}
	if run.Coverage == nil || run.Coverage.Records != 4 {
		t.Errorf("Expected coverage of 4 records, got %+v", run.Coverage)
	}
	if run.ID != models.GenerateScrapingRunID(o.now()) {
		t.Errorf("Unexpected run id %s", run.ID)
	}

	if len(publisher.outputs) != 1 || publisher.outputs[0].Metadata.TotalFacilities != 4 {
		t.Fatalf("Expected one published data set of 4, got %+v", publisher.outputs)
	}
	if got := publisher.outputs[0].Metadata.Stations; len(got) != 2 || got[0] != "池袋駅（東口）" {
		t.Errorf("Unexpected stations %v", got)
	}
	if len(publisher.runs) != 1 {
		t.Errorf("Expected the run report to be uploaded")
	}
	if strings.Join(run.UploadedFiles, ",") != "facilities/latest.json,facilities/backup.json,scraping-runs/run.json" {
		t.Errorf("Unexpected uploaded files %v", run.UploadedFiles)
	}

	if len(notifier.texts) != 1 || !strings.HasPrefix(notifier.texts[0], "豊島区駐輪場データ更新\n駅ページ: 2/3 成功") {
		t.Errorf("Unexpected notification %v", notifier.texts)
	}
	if !strings.Contains(notifier.texts[0], "失敗: 大塚駅") {
		t.Errorf("Expected failed station in notification, got %s", notifier.texts[0])
	}

	found := false
	for _, w := range run.Warnings {
		if strings.Contains(w, "success rate") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a success rate warning, got %v", run.Warnings)
	}
}

func TestOrchestratorConcurrentRunsKeepSeparateMetrics(t *testing.T) {
	o := newTestOrchestrator(&fixedStations{stations: orchestratorStations()})

	const runs = 4
	var wg sync.WaitGroup
	coverage := make([]int, runs)
	stations := make([]int, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			run, _, err := o.Run(context.Background(), RunOptions{TriggerType: models.TriggerTypeScheduled})
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if run.Coverage != nil {
				coverage[index] = run.Coverage.Records
			}
			stations[index] = run.TotalStations
		}(i)
	}
	wg.Wait()

	for i := 0; i < runs; i++ {
		if coverage[i] != 4 {
			t.Errorf("Run %d: expected coverage of 4 records, got %d", i, coverage[i])
		}
		if stations[i] != 3 {
			t.Errorf("Run %d: expected 3 stations, got %d", i, stations[i])
		}
	}
}

func TestOrchestratorRunNothingScrapedSkipsDataSet(t *testing.T) {
	stations := []models.Station{{Name: "大塚駅周辺", URL: "http://ward.test/022252.html"}}
	o := newTestOrchestrator(&fixedStations{stations: stations})
	publisher := &recordingPublisher{}
	o.SetPublisher(publisher)

	run, _, err := o.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if run.Status != models.ScrapingStatusFailed {
		t.Errorf("Expected failed run, got %s", run.Status)
	}
	if len(publisher.outputs) != 0 {
		t.Error("Expected the previous data set to be kept")
	}
	if len(publisher.runs) != 1 {
		t.Error("Expected the run report to be uploaded anyway")
	}
}

func TestOrchestratorRunWithFilter(t *testing.T) {
	o := newTestOrchestrator(&fixedStations{stations: orchestratorStations()})

	run, records, err := o.Run(context.Background(), RunOptions{StationFilter: []string{"目白駅"}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if run.TotalStations != 1 || len(records) != 2 || run.Status != models.ScrapingStatusCompleted {
		t.Errorf("Expected one completed station, got %+v", run)
	}
}

func TestOrchestratorRunNoStations(t *testing.T) {
	o := newTestOrchestrator(&fixedStations{stations: orchestratorStations()})

	run, _, err := o.Run(context.Background(), RunOptions{StationFilter: []string{"渋谷駅"}})
	if err == nil {
		t.Fatal("Expected an error when no station matches")
	}
	if run.Status != models.ScrapingStatusFailed {
		t.Errorf("Expected failed run, got %s", run.Status)
	}
}

func TestOrchestratorRunIndexFailureIsWarning(t *testing.T) {
	o := newTestOrchestrator(&fixedStations{
		stations: orchestratorStations()[:1],
		err:      errors.New("failed to fetch station index: timeout"),
	})

	run, _, err := o.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(run.Warnings) == 0 || run.Warnings[0] != "failed to fetch station index: timeout" {
		t.Errorf("Expected index warning first, got %v", run.Warnings)
	}
	if run.SuccessfulStations != 1 {
		t.Errorf("Expected the known station to be scraped, got %d", run.SuccessfulStations)
	}
}

func TestOrchestratorRunQueued(t *testing.T) {
	o := newTestOrchestrator(&fixedStations{stations: orchestratorStations()})
	queue := &recordingQueue{}
	publisher := &recordingPublisher{}
	o.SetQueue(queue)
	o.SetPublisher(publisher)

	run, records, err := o.Run(context.Background(), RunOptions{TriggerType: models.TriggerTypeScheduled})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if run.Status != models.ScrapingStatusQueued || run.TotalStations != 3 {
		t.Errorf("Expected 3 queued stations, got %s %d", run.Status, run.TotalStations)
	}
	if records != nil {
		t.Errorf("Expected no inline records, got %d", len(records))
	}
	if len(queue.tasks) != 3 {
		t.Fatalf("Expected 3 tasks, got %d", len(queue.tasks))
	}
	for _, task := range queue.tasks {
		if task.RunID != run.ID || !strings.HasPrefix(task.TaskID, "task_") {
			t.Errorf("Unexpected task %+v", task)
		}
	}
	if len(publisher.outputs) != 0 || len(publisher.runs) != 0 {
		t.Error("Expected nothing published in queue mode")
	}
}

func TestOrchestratorRunQueueFailure(t *testing.T) {
	o := newTestOrchestrator(&fixedStations{stations: orchestratorStations()})
	o.SetQueue(&recordingQueue{err: errors.New("queue does not exist")})

	run, _, err := o.Run(context.Background(), RunOptions{})
	if err == nil {
		t.Fatal("Expected an error")
	}
	if run.Status != models.ScrapingStatusFailed {
		t.Errorf("Expected failed run, got %s", run.Status)
	}
}

func TestFilterStations(t *testing.T) {
	stations := orchestratorStations()

	tests := []struct {
		name   string
		filter []string
		want   int
	}{
		{"empty filter", nil, 3},
		{"page title", []string{"大塚駅周辺"}, 1},
		{"label", []string{"池袋駅（東口）"}, 1},
		{"url file", []string{"022255.html"}, 1},
		{"several", []string{"大塚駅", "目白駅"}, 2},
		{"blank entries", []string{" "}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FilterStations(stations, tt.filter); len(got) != tt.want {
				t.Errorf("Expected %d stations, got %d", tt.want, len(got))
			}
		})
	}
}
