package models

import (
	"fmt"
	"strings"
	"time"
)

// Item is a raw spots-table item decoded without a schema, used by the migration tooling
type Item map[string]interface{}

// LegacyFields are flat attributes from the first table layout
var LegacyFields = []string{"total", "available", "daily_fee", "hourly_fee", "monthly_fee", "bikeTypes"}

// Required top-level fields of the current layout
var requiredSpotFields = []string{"id", "name", "lat", "lng", "ward", "station"}

const (
	wardToshima = "豊島区"
	unknownArea = "不明"
)

func (it Item) has(key string) bool {
	_, ok := it[key]
	return ok
}

// ID returns the item id or "unknown"
func (it Item) ID() string {
	if id, ok := it["id"].(string); ok && id != "" {
		return id
	}
	return "unknown"
}

// IsOldSchema reports whether an item still uses the flat layout or lacks area metadata
func IsOldSchema(item Item) bool {
	switch {
	case item.has("total") && item.has("available") && !item.has("capacity"):
		return true
	case item.has("daily_fee") && !item.has("fees"):
		return true
	case item.has("bikeTypes") && !item.has("vehicleTypes"):
		return true
	case !item.has("ward") || !item.has("station"):
		return true
	}
	return false
}

// MigrateItem returns a copy of the item converted to the current layout
func MigrateItem(item Item, now time.Time) Item {
	migrated := make(Item, len(item)+4)
	for k, v := range item {
		migrated[k] = v
	}

	if item.has("total") && item.has("available") && !item.has("capacity") {
		migrated["capacity"] = map[string]interface{}{
			"total":     item["total"],
			"available": item["available"],
		}
		delete(migrated, "total")
		delete(migrated, "available")
	}

	if item.has("daily_fee") && !item.has("fees") {
		daily := numberOr(item["daily_fee"], 0)
		migrated["fees"] = map[string]interface{}{
			"daily":   daily,
			"hourly":  numberOr(item["hourly_fee"], 0),
			"monthly": numberOr(item["monthly_fee"], 0),
			"details": fmt.Sprintf("1日%s円", formatNumber(daily)),
		}
		delete(migrated, "daily_fee")
		delete(migrated, "hourly_fee")
		delete(migrated, "monthly_fee")
	}

	if item.has("bikeTypes") && !item.has("vehicleTypes") {
		migrated["vehicleTypes"] = item["bikeTypes"]
		delete(migrated, "bikeTypes")
	}

	if coords, ok := item["coordinates"].(map[string]interface{}); ok {
		migrated["lat"] = numberOr(coords["lat"], 0)
		migrated["lng"] = numberOr(coords["lng"], 0)
	}

	if !migrated.has("ward") {
		address, _ := migrated["address"].(string)
		if strings.Contains(address, wardToshima) {
			migrated["ward"] = wardToshima
			migrated["station"] = "池袋"
		} else {
			migrated["ward"] = unknownArea
			migrated["station"] = unknownArea
		}
	}

	if !migrated.has("geoHash") {
		migrated["geoHash"] = ""
	}

	migrated["lastUpdated"] = now.Format("2006-01-02T15:04:05.000000")
	migrated["migrated"] = true

	return migrated
}

// ValidateSchema lists every way the item deviates from the current layout
func ValidateSchema(item Item) []string {
	var errs []string

	for _, field := range requiredSpotFields {
		if !item.has(field) {
			errs = append(errs, fmt.Sprintf("Missing required field: %s", field))
		}
	}

	if raw, ok := item["capacity"]; ok {
		capacity, isMap := raw.(map[string]interface{})
		if !isMap {
			errs = append(errs, "capacity should be an object")
		} else {
			if _, ok := capacity["total"]; !ok {
				errs = append(errs, "capacity.total is missing")
			}
			if _, ok := capacity["available"]; !ok {
				errs = append(errs, "capacity.available is missing")
			}
		}
	} else {
		errs = append(errs, "capacity field is missing")
	}

	if raw, ok := item["fees"]; ok {
		fees, isMap := raw.(map[string]interface{})
		if !isMap {
			errs = append(errs, "fees should be an object")
		} else if _, ok := fees["daily"]; !ok {
			errs = append(errs, "fees.daily is missing")
		}
	} else {
		errs = append(errs, "fees field is missing")
	}

	return errs
}

// HasLegacyFields reports whether cleanup would change the item
func HasLegacyFields(item Item) bool {
	for _, field := range LegacyFields {
		if item.has(field) {
			return true
		}
	}
	return false
}

// StripLegacyFields returns a copy of the item without the flat legacy attributes
func StripLegacyFields(item Item) Item {
	cleaned := make(Item, len(item))
	for k, v := range item {
		cleaned[k] = v
	}
	for _, field := range LegacyFields {
		delete(cleaned, field)
	}
	return cleaned
}

func numberOr(v interface{}, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return fallback
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
