package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"toshima-parking-finder/internal/models"
)

// Ward site locations
const (
	ToshimaBaseURL  = "https://www.city.toshima.lg.jp"
	ToshimaIndexURL = "https://www.city.toshima.lg.jp/434/machizukuri/kotsu/churinjo/022247/index.html"

	stationPathMarker = "/churinjo/022247/"
)

// Station pages known to exist; added when the index does not link them
var knownStations = []models.Station{
	{Name: "池袋駅周辺（東口）", Href: "/434/machizukuri/kotsu/churinjo/022247/022249.html"},
	{Name: "サンシャインシティ周辺", Href: "/434/machizukuri/kotsu/churinjo/022247/022250.html"},
	{Name: "池袋駅周辺（西口）", Href: "/434/machizukuri/kotsu/churinjo/022247/022251.html"},
	{Name: "大塚駅周辺", Href: "/434/machizukuri/kotsu/churinjo/022247/022252.html"},
	{Name: "巣鴨駅周辺", Href: "/434/machizukuri/kotsu/churinjo/022247/022253.html"},
	{Name: "高田馬場駅周辺", Href: "/434/machizukuri/kotsu/churinjo/022247/022254.html"},
	{Name: "目白駅周辺", Href: "/434/machizukuri/kotsu/churinjo/022247/022255.html"},
	{Name: "駒込駅周辺", Href: "/434/machizukuri/kotsu/churinjo/022247/022256.html"},
	{Name: "雑司が谷駅周辺", Href: "/434/machizukuri/kotsu/churinjo/022247/022257.html"},
	{Name: "東池袋駅周辺", Href: "/434/machizukuri/kotsu/churinjo/022247/022258.html"},
	{Name: "要町駅周辺", Href: "/434/machizukuri/kotsu/churinjo/022247/022259.html"},
	{Name: "千川駅周辺", Href: "/434/machizukuri/kotsu/churinjo/022247/022260.html"},
	{Name: "新大塚駅周辺", Href: "/434/machizukuri/kotsu/churinjo/022247/022261.html"},
	{Name: "西巣鴨駅周辺", Href: "/434/machizukuri/kotsu/churinjo/022247/022262.html"},
	{Name: "落合南長崎駅周辺", Href: "/434/machizukuri/kotsu/churinjo/022247/022263.html"},
	{Name: "椎名町駅周辺", Href: "/434/machizukuri/kotsu/churinjo/022247/022264.html"},
	{Name: "東長崎駅周辺", Href: "/434/machizukuri/kotsu/churinjo/022247/022265.html"},
	{Name: "下板橋駅周辺", Href: "/434/machizukuri/kotsu/churinjo/022247/022266.html"},
}

// Fetcher is what station discovery and the scrapers need from PageFetcher
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// StationDirectory lists the station pages of the ward site
type StationDirectory struct {
	fetcher  Fetcher
	baseURL  string
	indexURL string
}

// NewStationDirectory creates a directory reading the live ward index
func NewStationDirectory(fetcher Fetcher) *StationDirectory {
	return &StationDirectory{
		fetcher:  fetcher,
		baseURL:  ToshimaBaseURL,
		indexURL: ToshimaIndexURL,
	}
}

// NewStationDirectoryWithURLs creates a directory for another host, used by tests and local mirrors
func NewStationDirectoryWithURLs(fetcher Fetcher, baseURL, indexURL string) *StationDirectory {
	return &StationDirectory{fetcher: fetcher, baseURL: baseURL, indexURL: indexURL}
}

// Stations returns the linked station pages followed by any known page the index missed.
// When the index cannot be read only the known pages are returned, along with the error.
func (d *StationDirectory) Stations(ctx context.Context) ([]models.Station, error) {
	base, err := url.Parse(d.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	var discovered []models.Station
	var indexErr error

	page, err := d.fetcher.Fetch(ctx, d.indexURL)
	if err != nil {
		indexErr = fmt.Errorf("failed to fetch station index: %w", err)
	} else {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			indexErr = fmt.Errorf("failed to parse station index: %w", err)
		} else {
			discovered = DiscoverStations(doc, base)
		}
	}

	stations := MergeKnownStations(discovered, base)
	log.Printf("Found %d station pages (%d linked from index)", len(stations), len(discovered))
	return stations, indexErr
}

// DiscoverStations collects the station links of the index page: anchors under the
// station directory ending in .html with non-empty text, deduplicated by absolute URL
func DiscoverStations(doc *goquery.Document, base *url.URL) []models.Station {
	root := doc.Find("div.main-content").First()
	if root.Length() == 0 {
		root = doc.Find("div#main").First()
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	var stations []models.Station
	seen := make(map[string]bool)

	root.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.Contains(href, stationPathMarker) || !strings.HasSuffix(href, ".html") {
			return
		}

		name := strings.TrimSpace(a.Text())
		if name == "" {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		full := base.ResolveReference(ref).String()
		if seen[full] {
			return
		}
		seen[full] = true

		stations = append(stations, models.Station{Name: name, URL: full, Href: href})
	})

	return stations
}

// MergeKnownStations appends the known station pages missing from stations
func MergeKnownStations(stations []models.Station, base *url.URL) []models.Station {
	seen := make(map[string]bool, len(stations))
	for _, s := range stations {
		seen[s.URL] = true
	}

	merged := append([]models.Station(nil), stations...)
	for _, known := range knownStations {
		ref, err := url.Parse(known.Href)
		if err != nil {
			continue
		}
		full := base.ResolveReference(ref).String()
		if seen[full] {
			continue
		}
		seen[full] = true
		merged = append(merged, models.Station{Name: known.Name, URL: full, Href: known.Href})
	}
	return merged
}

// KnownStationCount is the number of station pages always scraped
func KnownStationCount() int {
	return len(knownStations)
}

// StationLabel turns a station page title into the station key stored with facilities,
// e.g. "池袋駅周辺（東口）" becomes "池袋駅（東口）"
func StationLabel(name string) string {
	return strings.TrimSpace(strings.Replace(name, "周辺", "", 1))
}
