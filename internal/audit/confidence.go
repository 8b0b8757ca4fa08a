package audit

import "github.com/meridian-research/newsaudit/internal/model"

// Defaults used when an analysis document does not carry a relevance value.
// A missing factor is treated as neutral rather than zeroing the blend.
const (
	defaultEntropyRelevance = 0.5
	defaultMarketRelevance  = 0.5
)

// OverallConfidence blends source credibility, the document's relevance
// factors, and the audit confidence score into a single 0..100 value.
func OverallConfidence(sourceCredibility float64, doc *model.Document, score int) float64 {
	entropy := defaultEntropyRelevance
	if doc != nil && doc.Metrics != nil && doc.Metrics.EntropyRelevance != nil {
		entropy = *doc.Metrics.EntropyRelevance
	}
	market := defaultMarketRelevance
	if doc != nil && doc.Entities != nil && doc.Entities.MarketRelevance != nil {
		market = *doc.Entities.MarketRelevance
	}

	blended := sourceCredibility * entropy * market * (float64(score) / 100.0) * 100.0
	if blended < 0 {
		return 0
	}
	if blended > 100 {
		return 100
	}
	return blended
}
