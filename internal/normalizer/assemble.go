package normalizer

import (
	"unicode/utf8"

	"toshima-parking-finder/internal/models"
)

// Retain reports whether a facility carries enough information to be published:
// a name and at least one of address, phone, hours or fee.
func Retain(f Facility) bool {
	if f.Name == "" {
		return false
	}
	return f.Address != "" || f.Phone != "" || f.Hours != "" || f.Fee != ""
}

// Assemble converts a working facility into the published record. The address is checked
// once more and dropped when it still looks like directions or fee text. Facilities without
// a name yield false.
func Assemble(f Facility) (models.FacilityRecord, bool) {
	if f.Name == "" {
		return models.FacilityRecord{}, false
	}

	return models.FacilityRecord{
		Name:           f.Name,
		Address:        finalAddress(f.Address),
		Phone:          f.Phone,
		Hours:          f.Hours,
		Fee:            f.Fee,
		VehicleSupport: f.VehicleSupport,
		Capacity:       f.Capacity,
	}, true
}

// AssembleAll assembles facilities in order, leaving out those that fail Retain after assembly
func AssembleAll(facilities []Facility) []models.FacilityRecord {
	records := make([]models.FacilityRecord, 0, len(facilities))
	for _, f := range facilities {
		record, ok := Assemble(f)
		if !ok || !record.HasDetails() {
			continue
		}
		records = append(records, record)
	}
	return records
}

func finalAddress(address string) string {
	if address == "" {
		return ""
	}
	address = stripAddressPrefix(address)
	if containsAny(address, finalAddressExclusions) {
		return ""
	}
	if utf8.RuneCountInString(address) < addressMinLen {
		return ""
	}
	return address
}
