package search

import (
	"math"
	"strings"
	"time"
)

// Match quality levels.
const (
	qualityLeadingPrefix = 1.0
	qualityPrefix        = 0.85
	qualitySubstring     = 0.6
)

// DefaultHalfLife is the age at which the recency boost halves.
const DefaultHalfLife = 30 * 24 * time.Hour

// matchQuality tests text against the query. An entity matches when the text
// contains the whole query, or when any text token starts with any query
// token. Quality is highest when the leading query token prefixes a text token.
func matchQuality(text, phrase string, queryTokens []string) (float64, bool) {
	textTokens := strings.Fields(text)

	leading, other := false, false
	for _, tt := range textTokens {
		for i, qt := range queryTokens {
			if !strings.HasPrefix(tt, qt) {
				continue
			}
			if i == 0 {
				leading = true
			} else {
				other = true
			}
		}
		if leading {
			break
		}
	}

	switch {
	case leading:
		return qualityLeadingPrefix, true
	case other:
		return qualityPrefix, true
	case strings.Contains(text, phrase):
		return qualitySubstring, true
	default:
		return 0, false
	}
}

// recencyFactor maps age to (0.5, 1]: 1 for a fresh entity, halving the
// distance to 0.5 every halfLife. Future timestamps count as fresh.
func recencyFactor(indexedAt, now time.Time, halfLife time.Duration) float64 {
	age := now.Sub(indexedAt)
	if age <= 0 || halfLife <= 0 {
		return 1
	}
	return 0.5 + 0.5*math.Exp2(-float64(age)/float64(halfLife))
}
