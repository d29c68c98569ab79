package normalizer

import (
	"strings"

	"toshima-parking-finder/internal/models"
)

// ExtractCoinFee returns the pay-per-use (coin) fee described in text.
//
// A compound "first N hours free, then every M hours P yen" phrase, when acceptable, is
// returned on its own. Otherwise every acceptable single-fee phrase is collected in pattern
// order, deduplicated and joined with "、". A phrase is rejected when it carries a
// subscription keyword or any amount of 1000 yen or more. Text saying day use is not
// offered yields the subscription-only sentinel; no acceptable phrase yields "".
func ExtractCoinFee(text string) string {
	if strings.Contains(text, "なし") && strings.Contains(text, "当日利用") {
		return models.FeeSubscriptionOnly
	}

	for _, re := range compoundFeePatterns {
		m := re.FindString(text)
		if m == "" {
			continue
		}
		if candidate := CleanText(m); isCoinFee(candidate) {
			return candidate
		}
	}

	var parts []string
	seen := make(map[string]bool)
	for _, re := range coinFeePatterns {
		for _, m := range re.FindAllString(text, -1) {
			candidate := CleanText(m)
			if !isCoinFee(candidate) || seen[candidate] {
				continue
			}
			seen[candidate] = true
			parts = append(parts, candidate)
		}
	}

	return strings.Join(parts, feeSeparator)
}

// isCoinFee rejects subscription prices by keyword and by magnitude
func isCoinFee(fragment string) bool {
	if containsAny(fragment, subscriptionKeywords) {
		return false
	}
	return !highAmountPattern.MatchString(fragment)
}
