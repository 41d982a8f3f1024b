// Package frustration scores the customer's emotional state for a turn by
// combining deterministic indicator matching with an external semantic
// scoring capability.
package frustration

import (
	"strings"

	"github.com/bridgedesk/bridgedesk/internal/config"
)

// Indicator categories.
const (
	CategoryHigh     = "high_frustration"
	CategoryModerate = "moderate_frustration"
	CategoryEscalate = "escalation_phrase"
	CategoryUrgency  = "urgency"
	CategoryRepeat   = "repeat_complaint"
)

// Per-category score contributions for the deterministic pass.
var categoryWeights = map[string]float64{
	CategoryHigh:     2.5,
	CategoryModerate: 1.5,
	CategoryEscalate: 2.0,
	CategoryUrgency:  1.0,
	CategoryRepeat:   1.5,
}

type indicatorCategory struct {
	name     string
	keywords []string
}

// IndicatorClassifier is a deterministic keyword classifier over the
// configured category → phrase lists. It is independent of the semantic
// scorer and replaceable without touching it.
type IndicatorClassifier struct {
	categories []indicatorCategory
}

// Factor is one matched indicator.
type Factor struct {
	Category string `json:"category"`
	Phrase   string `json:"phrase"`
}

// NewIndicatorClassifier builds a classifier from config.
func NewIndicatorClassifier(cfg config.IndicatorConfig) *IndicatorClassifier {
	return &IndicatorClassifier{categories: []indicatorCategory{
		{CategoryHigh, cfg.HighFrustration},
		{CategoryModerate, cfg.ModerateFrustration},
		{CategoryEscalate, cfg.EscalationPhrases},
		{CategoryUrgency, cfg.Urgency},
		{CategoryRepeat, cfg.RepeatComplaint},
	}}
}

// Classify returns all matched indicators and their combined score
// contribution, clamped to [0,10]. Each category contributes once per
// matched phrase.
func (c *IndicatorClassifier) Classify(text string) ([]Factor, float64) {
	lower := strings.ToLower(text)

	var factors []Factor
	var score float64
	for _, cat := range c.categories {
		for _, kw := range cat.keywords {
			if containsPhrase(lower, strings.ToLower(kw)) {
				factors = append(factors, Factor{Category: cat.name, Phrase: kw})
				score += categoryWeights[cat.name]
			}
		}
	}
	if score > 10 {
		score = 10
	}
	return factors, score
}

// containsPhrase matches a phrase on word boundaries so that "now" does
// not fire inside "know".
func containsPhrase(text, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
