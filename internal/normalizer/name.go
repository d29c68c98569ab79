package normalizer

import (
	"strings"
	"unicode/utf8"
)

const (
	nameMinLen = 3
	nameMaxLen = 50
)

// IsValidFacilityName reports whether a heading or line names an actual parking facility.
// Deny phrases win over allow keywords.
func IsValidFacilityName(text string) bool {
	trimmed := strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(trimmed) < nameMinLen {
		return false
	}

	// long text is a description, not a name
	if utf8.RuneCountInString(text) > nameMaxLen {
		return false
	}

	if containsAny(text, nameDenyKeywords) {
		return false
	}

	if namePhonePattern.MatchString(text) {
		return false
	}

	if nameNumericPattern.MatchString(trimmed) {
		return false
	}

	if strings.HasPrefix(trimmed, "(") || strings.HasPrefix(trimmed, "（") {
		return false
	}

	return containsAny(text, nameAllowKeywords)
}
