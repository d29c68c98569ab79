package chat

import (
	"fmt"
	"sort"
	"strings"

	"toshima-parking-finder/internal/models"
)

// Sort priorities
const (
	PriorityCost     = "cost"
	PriorityDistance = "distance"
	PriorityVehicle  = "vehicle"
)

const (
	maxFilteredSpots = 10
	maxPromptSpots   = 5
	maxShownSpots    = 3
)

// Filters is what the three selection steps resolve to
type Filters struct {
	Category    string
	Keywords    []string
	Priority    string
	FreeOnly    bool
	FeeMax      int // 0 means no limit
	DistanceMax int // 0 means no limit
	VehicleType string
	Area        string
	UseLocation bool
}

type categoryOption struct {
	category string
	keywords []string
}

type priorityOption struct {
	priority    string
	freeOnly    bool
	feeMax      int
	distanceMax int
	vehicleType string
}

type areaOption struct {
	area        string
	center      models.Coordinates
	useLocation bool
}

var step1Options = map[string]categoryOption{
	"park":     {"park", []string{"公園", "自然"}},
	"station":  {"station", []string{"駅", "電車", "交通"}},
	"shopping": {"shopping", []string{"商業", "ショッピング", "買い物"}},
	"hospital": {"facility", []string{"病院", "施設", "公的"}},
}

var step2Options = map[string]priorityOption{
	"free":         {priority: PriorityCost, freeOnly: true},
	"cheap":        {priority: PriorityCost, feeMax: 300},
	"near_station": {priority: PriorityDistance, distanceMax: 200},
	"motorcycle":   {priority: PriorityVehicle, vehicleType: models.VehicleMoped},
	"bicycle":      {priority: PriorityVehicle, vehicleType: models.VehicleBicycle},
}

var step3Options = map[string]areaOption{
	"ikebukuro_west":   {area: "west", center: models.Coordinates{Lat: 35.7295, Lng: 139.7089}},
	"ikebukuro_east":   {area: "east", center: models.Coordinates{Lat: 35.7301, Lng: 139.7147}},
	"ikebukuro_center": {area: "center", center: models.Coordinates{Lat: 35.7298, Lng: 139.7118}},
	"current_location": {area: "current", useLocation: true},
}

// AreaCenter returns the reference point of a step 3 choice
func AreaCenter(id string) (models.Coordinates, bool) {
	opt, ok := step3Options[id]
	if !ok || opt.useLocation {
		return models.Coordinates{}, false
	}
	return opt.center, true
}

// BuildFilters maps the selected options to filters. Unknown ids are ignored.
func BuildFilters(sel Selections) Filters {
	var f Filters

	if sel.Step1 != nil {
		if opt, ok := step1Options[sel.Step1.ID]; ok {
			f.Category = opt.category
			f.Keywords = opt.keywords
		}
	}
	if sel.Step2 != nil {
		if opt, ok := step2Options[sel.Step2.ID]; ok {
			f.Priority = opt.priority
			f.FreeOnly = opt.freeOnly
			f.FeeMax = opt.feeMax
			f.DistanceMax = opt.distanceMax
			f.VehicleType = opt.vehicleType
		}
	}
	if sel.Step3 != nil {
		if opt, ok := step3Options[sel.Step3.ID]; ok {
			f.Area = opt.area
			f.UseLocation = opt.useLocation
		}
	}

	return f
}

// unknownValue stands in for a missing daily fee or distance, so such spots never pass a
// fee or distance limit and sort last
const unknownValue = 999

func dailyFee(spot models.ParkingSpot) int {
	if spot.DailyFeeMissing {
		return unknownValue
	}
	return spot.Fees.Daily
}

func distance(spot models.ParkingSpot) int {
	if spot.DistanceMissing {
		return unknownValue
	}
	return spot.Distance
}

// Match reports whether a spot passes the fee, distance and vehicle filters
func (f Filters) Match(spot models.ParkingSpot) bool {
	if f.FreeOnly && dailyFee(spot) > 0 {
		return false
	}
	if f.FeeMax > 0 && dailyFee(spot) > f.FeeMax {
		return false
	}
	if f.DistanceMax > 0 && distance(spot) > f.DistanceMax {
		return false
	}
	if f.VehicleType != "" && !spot.HasVehicleType(f.VehicleType) {
		return false
	}
	return true
}

// Apply filters the spots, orders them by the chosen priority and keeps the first ten.
// Without a priority the spots are ordered by distance.
func (f Filters) Apply(spots []models.ParkingSpot) []models.ParkingSpot {
	filtered := make([]models.ParkingSpot, 0, len(spots))
	for _, spot := range spots {
		if f.Match(spot) {
			filtered = append(filtered, spot)
		}
	}

	switch f.Priority {
	case PriorityCost:
		sort.SliceStable(filtered, func(i, j int) bool {
			return dailyFee(filtered[i]) < dailyFee(filtered[j])
		})
	case PriorityDistance, "":
		sort.SliceStable(filtered, func(i, j int) bool {
			return distance(filtered[i]) < distance(filtered[j])
		})
	}

	if len(filtered) > maxFilteredSpots {
		filtered = filtered[:maxFilteredSpots]
	}
	return filtered
}

// CompactPrompt builds a short recommendation prompt from at most five spots
func CompactPrompt(sel Selections, spots []models.ParkingSpot) string {
	priority := "一般的な"
	if sel.Step2 != nil && sel.Step2.Text != "" {
		priority = sel.Step2.Text
	}
	area := "エリア"
	if sel.Step3 != nil && sel.Step3.Text != "" {
		area = sel.Step3.Text
	}

	n := min(len(spots), maxPromptSpots)
	compact := make([]string, 0, n)
	for _, p := range spots[:n] {
		compact = append(compact, fmt.Sprintf("%s(空%d/%d,徒歩%d分,%d円)",
			p.Name, p.Capacity.Available, p.Capacity.Total, p.WalkTime, p.Fees.Daily))
	}

	return fmt.Sprintf("%s重視で%sの駐輪場。%d件:%s。上位3つ推奨理由各1行",
		priority, area, len(compact), strings.Join(compact, "|"))
}

func firstN(spots []models.ParkingSpot, n int) []models.ParkingSpot {
	if len(spots) > n {
		return spots[:n]
	}
	if spots == nil {
		return []models.ParkingSpot{}
	}
	return spots
}
