package models

import (
	"math/rand"
	"time"
)

// usageBand is the share of occupied slots expected during a span of hours
type usageBand struct {
	fromHour, toHour int
	min, max         float64
}

// Ordered; first matching band wins, the last one is the default
var usageBands = []usageBand{
	{7, 9, 0.7, 0.9},   // morning commute
	{17, 19, 0.6, 0.8}, // evening commute
	{12, 14, 0.4, 0.6}, // lunch
	{20, 23, 0.3, 0.5}, // night
}

var defaultUsage = usageBand{0, 23, 0.2, 0.4}

// UsageRange returns the simulated occupancy range for an hour of day
func UsageRange(hour int) (float64, float64) {
	for _, band := range usageBands {
		if hour >= band.fromHour && hour <= band.toHour {
			return band.min, band.max
		}
	}
	return defaultUsage.min, defaultUsage.max
}

// SimulateAvailability estimates free slots for a spot at the given time
func SimulateAvailability(total int, at time.Time, rng *rand.Rand) int {
	lo, hi := UsageRange(at.Hour())
	rate := lo + rng.Float64()*(hi-lo)
	used := int(float64(total) * rate)
	available := total - used
	if available < 0 {
		return 0
	}
	return available
}

// IkebukuroSpots returns the static spot catalogue served until live feeds are connected.
// Capacity.Available is left at zero; the collector fills it in.
func IkebukuroSpots() []ParkingSpot {
	return []ParkingSpot{
		{
			ID: "ikebukuro-east-1", Name: "池袋東口駐輪場", Address: "東京都豊島区東池袋1-1-1",
			Lat: 35.7289, Lng: 139.7186, Distance: 50, WalkTime: 1,
			Capacity:     Capacity{Total: 200},
			Fees:         Fees{Hourly: 100, Daily: 500, Monthly: 8000},
			OpenHours:    "24時間",
			VehicleTypes: []string{"自転車", "原付"},
		},
		{
			ID: "ikebukuro-west-1", Name: "池袋西口駐輪場", Address: "東京都豊島区西池袋1-1-1",
			Lat: 35.7289, Lng: 139.7094, Distance: 80, WalkTime: 2,
			Capacity:     Capacity{Total: 300},
			Fees:         Fees{Hourly: 100, Daily: 400, Monthly: 7500},
			OpenHours:    "5:00-25:00",
			VehicleTypes: []string{"自転車", "原付", "バイク"},
		},
		{
			ID: "sunshine-city-1", Name: "サンシャインシティ駐輪場", Address: "東京都豊島区東池袋3-1-1",
			Lat: 35.7285, Lng: 139.7183, Distance: 300, WalkTime: 5,
			Capacity:     Capacity{Total: 150},
			Fees:         Fees{Hourly: 150, Daily: 600, Monthly: 9000},
			OpenHours:    "6:00-24:00",
			VehicleTypes: []string{"自転車"},
		},
		{
			ID: "ikebukuro-station-1", Name: "池袋駅東地下駐輪場", Address: "東京都豊島区東池袋1-1-25",
			Lat: 35.7280, Lng: 139.7181, Distance: 20, WalkTime: 1,
			Capacity:     Capacity{Total: 400},
			Fees:         Fees{Hourly: 120, Daily: 550, Monthly: 8500},
			OpenHours:    "24時間",
			VehicleTypes: []string{"自転車", "原付"},
		},
		{
			ID: "tobu-parking-1", Name: "東武池袋駐輪場", Address: "東京都豊島区南池袋1-1-25",
			Lat: 35.7285, Lng: 139.7101, Distance: 100, WalkTime: 2,
			Capacity:     Capacity{Total: 250},
			Fees:         Fees{Hourly: 100, Daily: 450, Monthly: 7000},
			OpenHours:    "5:30-24:30",
			VehicleTypes: []string{"自転車", "原付"},
		},
	}
}

// CollectSpots returns the catalogue stamped with simulated availability for the given time
func CollectSpots(at time.Time, rng *rand.Rand) []ParkingSpot {
	spots := IkebukuroSpots()
	stamp := at.Format(time.RFC3339)
	for i := range spots {
		spots[i].Capacity.Available = SimulateAvailability(spots[i].Capacity.Total, at, rng)
		spots[i].Ward = wardToshima
		spots[i].Station = "池袋"
		spots[i].LastUpdated = stamp
	}
	return spots
}
