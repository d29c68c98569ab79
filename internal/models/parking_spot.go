package models

import (
	"fmt"
	"sort"
	"strings"
)

// ParkingSpot is a parking location with live availability, as stored in the spots table.
// Items are replaced wholesale on every collection run.
type ParkingSpot struct {
	ID             string   `json:"id" dynamodbav:"id"`
	Name           string   `json:"name" dynamodbav:"name"`
	Address        string   `json:"address" dynamodbav:"address"`
	Lat            float64  `json:"lat" dynamodbav:"lat"`
	Lng            float64  `json:"lng" dynamodbav:"lng"`
	Distance       int      `json:"distance" dynamodbav:"distance"` // meters from the station
	WalkTime       int      `json:"walkTime" dynamodbav:"walkTime"` // minutes
	Capacity       Capacity `json:"capacity" dynamodbav:"capacity"`
	Fees           Fees     `json:"fees" dynamodbav:"fees"`
	OpenHours      string   `json:"openHours" dynamodbav:"openHours"`
	VehicleTypes   []string `json:"vehicleTypes" dynamodbav:"vehicleTypes"`
	PaymentMethods []string `json:"paymentMethods,omitempty" dynamodbav:"paymentMethods,omitempty"`
	Ward           string   `json:"ward,omitempty" dynamodbav:"ward,omitempty"`
	Station        string   `json:"station,omitempty" dynamodbav:"station,omitempty"`
	GeoHash        string   `json:"geoHash" dynamodbav:"geoHash"`
	LastUpdated    string   `json:"lastUpdated" dynamodbav:"lastUpdated"`
	Migrated       bool     `json:"migrated,omitempty" dynamodbav:"migrated,omitempty"`

	// Set when the stored item lacks fees.daily or distance
	DailyFeeMissing bool `json:"-" dynamodbav:"-"`
	DistanceMissing bool `json:"-" dynamodbav:"-"`
}

// Capacity holds total and currently free slots
type Capacity struct {
	Total     int `json:"total" dynamodbav:"total"`
	Available int `json:"available" dynamodbav:"available"`
}

// Fees in yen
type Fees struct {
	Hourly  int    `json:"hourly" dynamodbav:"hourly"`
	Daily   int    `json:"daily" dynamodbav:"daily"`
	Monthly int    `json:"monthly" dynamodbav:"monthly"`
	Details string `json:"details,omitempty" dynamodbav:"details,omitempty"`
}

// Coordinates is a lat/lng pair
type Coordinates struct {
	Lat float64 `json:"lat" dynamodbav:"lat"`
	Lng float64 `json:"lng" dynamodbav:"lng"`
}

// FrontendSpot is the display form returned by the spots API
type FrontendSpot struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	Distance      string `json:"distance"`
	WalkTime      string `json:"walkTime"`
	Price         string `json:"price"`
	Hours         string `json:"hours"`
	VehicleTypes  string `json:"vehicleTypes"`
	OccupancyRate int    `json:"occupancyRate"`
	Available     int    `json:"available"`
	Total         int    `json:"total"`
	LastUpdated   string `json:"lastUpdated"`

	distanceMeters int
}

// OccupancyRate returns the used share in percent, truncated from the floating point
// ratio, and 0 for spots without capacity
func (p ParkingSpot) OccupancyRate() int {
	if p.Capacity.Total <= 0 {
		return 0
	}
	used := float64(p.Capacity.Total - p.Capacity.Available)
	return int(used / float64(p.Capacity.Total) * 100)
}

// Coordinates returns the spot position
func (p ParkingSpot) Coordinates() Coordinates {
	return Coordinates{Lat: p.Lat, Lng: p.Lng}
}

// ToFrontend formats a spot for display
func (p ParkingSpot) ToFrontend() (FrontendSpot, error) {
	if p.ID == "" {
		return FrontendSpot{}, fmt.Errorf("spot id is missing")
	}
	if p.Name == "" {
		return FrontendSpot{}, fmt.Errorf("spot %s has no name", p.ID)
	}

	return FrontendSpot{
		ID:             p.ID,
		Name:           p.Name,
		Address:        p.Address,
		Distance:       fmt.Sprintf("%dm", p.Distance),
		WalkTime:       fmt.Sprintf("徒歩%d分", p.WalkTime),
		Price:          fmt.Sprintf("1日%d円", p.Fees.Daily),
		Hours:          p.OpenHours,
		VehicleTypes:   strings.Join(p.VehicleTypes, ", "),
		OccupancyRate:  p.OccupancyRate(),
		Available:      p.Capacity.Available,
		Total:          p.Capacity.Total,
		LastUpdated:    p.LastUpdated,
		distanceMeters: p.Distance,
	}, nil
}

// FormatForFrontend converts spots for display, skipping ones that cannot be formatted,
// and sorts the result by distance
func FormatForFrontend(spots []ParkingSpot) ([]FrontendSpot, []error) {
	formatted := make([]FrontendSpot, 0, len(spots))
	var errs []error
	for _, spot := range spots {
		f, err := spot.ToFrontend()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		formatted = append(formatted, f)
	}

	sort.SliceStable(formatted, func(i, j int) bool {
		return formatted[i].distanceMeters < formatted[j].distanceMeters
	})
	return formatted, errs
}

// HasVehicleType reports whether the spot accepts the given vehicle type
func (p ParkingSpot) HasVehicleType(vehicleType string) bool {
	return strings.Contains(strings.Join(p.VehicleTypes, " "), vehicleType)
}
