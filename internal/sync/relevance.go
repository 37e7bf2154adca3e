package sync

import (
	"strings"

	"horse.fit/rankpulse/internal/db"
	"horse.fit/rankpulse/internal/textnorm"
)

// GuessRelevance estimates the initial relevance of an auto-discovered
// keyword from configured substring lists: domain terms raise it, known
// noise lowers it, everything else is medium. The deny list wins so
// branded junk ("acme jobs") cannot sneak into the high tier.
func GuessRelevance(text string, highTerms, lowTerms []string) (string, int16) {
	normalized := textnorm.Normalize(text)
	for _, term := range lowTerms {
		if term != "" && strings.Contains(normalized, textnorm.Normalize(term)) {
			return db.RelevanceLow, 1
		}
	}
	for _, term := range highTerms {
		if term != "" && strings.Contains(normalized, textnorm.Normalize(term)) {
			return db.RelevanceHigh, 5
		}
	}
	return db.RelevanceMedium, 3
}
