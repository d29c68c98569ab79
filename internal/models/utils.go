package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// GenerateFacilityID creates a stable ID for a facility from the station page and its name.
// The same facility scraped on a later run maps to the same ID, so storage overwrites it.
func GenerateFacilityID(station, name string) string {
	normalizedStation := strings.TrimSpace(station)
	normalizedName := strings.TrimSpace(name)

	input := fmt.Sprintf("%s|%s", normalizedStation, normalizedName)
	hash := sha256.Sum256([]byte(input))

	return "fac_" + hex.EncodeToString(hash[:])[:12]
}

// GenerateScrapingRunID creates a unique ID for a scraping run
func GenerateScrapingRunID(timestamp time.Time) string {
	input := fmt.Sprintf("run|%d", timestamp.Unix())
	hash := sha256.Sum256([]byte(input))
	return "run_" + hex.EncodeToString(hash[:])[:8]
}

// GenerateStationTaskID creates an ID for a queued station scrape
func GenerateStationTaskID(stationURL string, timestamp time.Time) string {
	input := fmt.Sprintf("%s|%d", stationURL, timestamp.Unix())
	hash := sha256.Sum256([]byte(input))
	return "task_" + hex.EncodeToString(hash[:])[:8]
}

// ValidateVehicleType checks the vehicle types used by the spots table
func ValidateVehicleType(vehicleType string) bool {
	validTypes := []string{
		VehicleBicycle,
		VehicleMoped,
		VehicleMotorbike,
	}

	for _, validType := range validTypes {
		if vehicleType == validType {
			return true
		}
	}
	return false
}

// ValidateParkingSpot checks the fields a spot needs before it is written
func ValidateParkingSpot(spot ParkingSpot) error {
	if spot.ID == "" {
		return fmt.Errorf("id is required")
	}
	if spot.Name == "" {
		return fmt.Errorf("name is required")
	}
	if spot.Capacity.Total < 0 || spot.Capacity.Available < 0 {
		return fmt.Errorf("capacity cannot be negative")
	}
	if spot.Capacity.Available > spot.Capacity.Total {
		return fmt.Errorf("available (%d) exceeds total (%d)", spot.Capacity.Available, spot.Capacity.Total)
	}
	for _, vt := range spot.VehicleTypes {
		if !ValidateVehicleType(vt) {
			return fmt.Errorf("invalid vehicle type: %s", vt)
		}
	}
	return nil
}

// Vehicle types
const (
	VehicleBicycle   = "自転車"
	VehicleMoped     = "原付"
	VehicleMotorbike = "バイク"
)
