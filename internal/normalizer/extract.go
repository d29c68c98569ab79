package normalizer

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"toshima-parking-finder/internal/models"
)

// Facility is the working record for one facility while its section is being read.
// Every field is set at most once: the first value found wins.
type Facility struct {
	Name           string
	Address        string
	Phone          string
	Hours          string
	Fee            string
	Subscription   string
	Capacity       string
	VehicleSupport models.VehicleSupport
}

func (f *Facility) setAddress(v string) {
	if f.Address == "" {
		f.Address = v
	}
}

func (f *Facility) setPhone(v string) {
	if f.Phone == "" {
		f.Phone = v
	}
}

func (f *Facility) setHours(v string) {
	if f.Hours == "" {
		f.Hours = v
	}
}

func (f *Facility) setFee(v string) {
	if f.Fee == "" {
		f.Fee = v
	}
}

func (f *Facility) setSubscription(v string) {
	if f.Subscription == "" {
		f.Subscription = v
	}
}

func (f *Facility) setCapacity(v string) {
	if f.Capacity == "" {
		f.Capacity = v
	}
}

func (f *Facility) setVehicleSupport(v models.VehicleSupport) {
	if f.VehicleSupport == models.VehicleSupportUnknown {
		f.VehicleSupport = v
	}
}

// ExtractFields reads every field of a facility from the free text of its section.
// Calling it twice on the same input gives the same result.
func ExtractFields(name, block string) Facility {
	f := Facility{Name: strings.TrimSpace(name)}
	if block != "" {
		f.fillFromSection(block)
	}
	return f
}

// fillFromSection fills whatever is still missing from the whole text of a section
func (f *Facility) fillFromSection(text string) {
	if f.Address == "" {
		f.setAddress(ExtractAddress(text))
	}

	if f.Fee == "" {
		if fee := ExtractCoinFee(text); fee != "" {
			f.setFee(fee)
		} else {
			f.setFee(models.FeeSubscriptionOnly)
		}
	}

	if f.Phone == "" {
		f.setPhone(ExtractPhone(text))
	}

	if f.Hours == "" {
		f.setHours(ExtractHours(text))
	}

	if f.Capacity == "" {
		f.setCapacity(ExtractCapacity(text))
	}

	if f.VehicleSupport == models.VehicleSupportUnknown {
		f.setVehicleSupport(DetermineVehicleSupport(text, f.Capacity))
	}
}

// nonEmptyLines splits text into trimmed, non-empty lines
func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func stripAddressPrefix(line string) string {
	for _, prefix := range addressPrefixes {
		line = strings.ReplaceAll(line, prefix, "")
	}
	return strings.TrimSpace(line)
}

// ExtractAddress returns the first line of text that looks like a street address
func ExtractAddress(text string) string {
	for _, line := range nonEmptyLines(text) {
		candidate := stripAddressPrefix(line)

		if matchesAny(addressExclusions, candidate) {
			continue
		}

		n := utf8.RuneCountInString(candidate)
		if matchesAny(addressInclusions, candidate) && n >= addressMinLen && n <= addressMaxLen {
			return candidate
		}
	}
	return ""
}

// ExtractPhone returns the first phone number in text with separators normalized to hyphens
func ExtractPhone(text string) string {
	return firstPhone(phonePatterns, text)
}

func firstPhone(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return normalizePhone(m[1])
		}
	}
	return ""
}

func normalizePhone(number string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '　' || r == '\t' {
			return '-'
		}
		return r
	}, number)
}

// ExtractHours returns the operating hours in text, one of the sentinels, or ""
func ExtractHours(text string) string {
	if strings.Contains(text, models.HoursAllDay) {
		return models.HoursAllDay
	}

	for _, re := range hoursPatterns {
		if m := re.FindString(text); m != "" {
			cleaned := CleanText(m)
			if cleaned != "" && !strings.Contains(cleaned, "円") && !strings.Contains(cleaned, "台") {
				return cleaned
			}
		}
	}

	if strings.Contains(text, "当日利用") && !strings.Contains(text, "なし") {
		return models.HoursDayUse
	}

	return ""
}

// ExtractCapacity returns the first "<n>台" phrase in text
func ExtractCapacity(text string) string {
	return capacityPattern.FindString(text)
}

// DetermineVehicleSupport decides whether mopeds can park. Explicit wording about 原付 wins;
// otherwise a capacity that does not mention a motor vehicle type implies bicycles only.
func DetermineVehicleSupport(text, capacity string) models.VehicleSupport {
	if strings.Contains(text, "原付") {
		if strings.Contains(text, "利用できません") || strings.Contains(text, "利用不可") {
			return models.VehicleSupportUnavailable
		}
		if strings.Contains(text, "利用できます") || strings.Contains(text, "利用可能") {
			return models.VehicleSupportAvailable
		}
	}

	if capacity != "" && !vehicleSubtypePattern.MatchString(capacity) {
		return models.VehicleSupportUnavailable
	}

	return models.VehicleSupportUnknown
}

// CleanText flattens newlines and tabs and collapses whitespace runs
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	cleaned := strings.NewReplacer("\n", " ", "\t", " ").Replace(text)
	cleaned = whitespaceRun.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}
