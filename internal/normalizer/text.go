package normalizer

import (
	"strings"
	"unicode/utf8"
)

// Lines at least this long are prose, never a facility name
const maxNameLineLen = 100

// ExtractFromText reads facilities from plain text, one per line naming a facility, with
// the lines that follow filling in its details until the next name.
func ExtractFromText(text string) []Facility {
	var facilities []Facility
	var current *Facility

	flush := func() {
		if current != nil && current.Name != "" {
			facilities = append(facilities, *current)
		}
	}

	for _, line := range nonEmptyLines(text) {
		short := utf8.RuneCountInString(line) < maxNameLineLen

		if short && containsAny(line, nameAllowKeywords) {
			if !IsValidFacilityName(line) {
				continue
			}
			flush()
			current = &Facility{Name: line}
			continue
		}

		if current == nil {
			continue
		}
		current.fillFromLine(line, short)
	}
	flush()

	return facilities
}

func (f *Facility) fillFromLine(line string, short bool) {
	if short && (strings.ContainsAny(line, "区町") || strings.Contains(line, "丁目")) {
		f.setAddress(line)
	}

	if m := simplePhonePattern.FindString(line); m != "" {
		f.setPhone(m)
	}

	hasYen := strings.Contains(line, "円")

	if !hasYen && (strings.Contains(line, "時間") || strings.Contains(line, "午前") || strings.Contains(line, "午後")) {
		f.setHours(line)
	}

	if hasYen && (strings.Contains(line, "時間") || strings.Contains(line, "料金") || strings.Contains(line, "無料")) {
		f.setFee(ExtractCoinFee(line))
	}

	f.setCapacity(ExtractCapacity(line))

	if strings.Contains(line, "原付") || strings.Contains(line, "バイク") {
		f.setVehicleSupport(DetermineVehicleSupport(line, ""))
	}

	if strings.Contains(line, "定期") || strings.Contains(line, "月極") {
		f.setSubscription(line)
	}
}
