package frustration

import (
	"context"
	"log/slog"

	"github.com/bridgedesk/bridgedesk/internal/config"
	"github.com/bridgedesk/bridgedesk/internal/provider"
)

// Frustration levels, derived from the numeric score by the configured
// cut points.
const (
	LevelLow      = "low"
	LevelModerate = "moderate"
	LevelHigh     = "high"
	LevelCritical = "critical"
)

// Trend values over the recent score history.
const (
	TrendEscalating       = "escalating"
	TrendStable           = "stable"
	TrendDecreasing       = "decreasing"
	TrendInsufficientData = "insufficient_data"
)

const scoreRubricPrompt = "You rate how frustrated a customer is in a support conversation. " +
	"0 means perfectly calm, 10 means hostile or about to churn. " +
	"Consider tone, repetition of complaints and demands for escalation."

// Result is the outcome of scoring one turn.
type Result struct {
	Score               float64  `json:"score"`      // [0,10]
	Level               string   `json:"level"`
	Confidence          float64  `json:"confidence"` // [0,1]
	Trend               string   `json:"trend"`
	ContributingFactors []Factor `json:"contributing_factors"`
	// Degraded is set when the semantic scorer was unavailable and only
	// the indicator pass contributed.
	Degraded bool `json:"degraded"`
}

// Scorer scores frustration for a message in its conversation context.
// It has no side effects; callers append the result as an audit event.
type Scorer struct {
	cfg        config.FrustrationConfig
	semantic   provider.SemanticScorer
	indicators *IndicatorClassifier
}

// NewScorer creates a frustration scorer. semantic may be nil, in which
// case every result is degraded.
func NewScorer(cfg config.FrustrationConfig, semantic provider.SemanticScorer) *Scorer {
	return &Scorer{
		cfg:        cfg,
		semantic:   semantic,
		indicators: NewIndicatorClassifier(cfg.Indicators),
	}
}

// ScoreMessage scores the current message. history is the bounded recent
// interaction window (most recent last); priorScores are this
// conversation's previous frustration scores, oldest first.
func (s *Scorer) ScoreMessage(ctx context.Context, text string, history []provider.ContextMessage, priorScores []float64) *Result {
	factors, indicatorScore := s.indicators.Classify(text)

	current := indicatorScore
	confidence := degradedConfidence(len(factors), s.cfg.DegradedConfidenceCeiling)
	degraded := true

	if s.semantic != nil {
		if sem, err := s.semantic.Score(ctx, text, scoreRubricPrompt, history); err == nil {
			// Indicators and the model each see half the picture; average
			// them so a calm wording cannot hide matched hard indicators
			// and vice versa.
			current = (indicatorScore + sem.NumericScore) / 2
			confidence = sem.Confidence
			degraded = false
		} else {
			slog.Warn("semantic frustration scoring degraded", "error", err)
		}
	}

	score := current
	if len(priorScores) > 0 {
		score = s.cfg.RecentWeight*mean(priorScores) + s.cfg.CurrentWeight*current
	}
	if score > 10 {
		score = 10
	}
	if score < 0 {
		score = 0
	}

	return &Result{
		Score:               score,
		Level:               s.LevelFor(score),
		Confidence:          confidence,
		Trend:               s.trend(append(append([]float64(nil), priorScores...), score)),
		ContributingFactors: factors,
		Degraded:            degraded,
	}
}

// LevelFor maps a score to its categorical level using the configured cut
// points. The mapping is monotonic non-decreasing in the score.
func (s *Scorer) LevelFor(score float64) string {
	switch {
	case score >= s.cfg.CriticalThreshold:
		return LevelCritical
	case score >= s.cfg.HighThreshold:
		return LevelHigh
	case score >= s.cfg.ModerateThreshold:
		return LevelModerate
	default:
		return LevelLow
	}
}

// IsDifficult reports whether a level counts as a difficult case for
// agent wellbeing purposes.
func IsDifficult(level string) bool {
	return level == LevelHigh || level == LevelCritical
}

// trend inspects the last TrendWindow scores (most recent last).
func (s *Scorer) trend(scores []float64) string {
	n := s.cfg.TrendWindow
	if n < 2 {
		n = 2
	}
	if len(scores) < n {
		return TrendInsufficientData
	}
	window := scores[len(scores)-n:]

	increasing, decreasing := true, true
	for i := 1; i < len(window); i++ {
		if window[i] <= window[i-1] {
			increasing = false
		}
		if window[i] >= window[i-1] {
			decreasing = false
		}
	}
	switch {
	case increasing:
		return TrendEscalating
	case decreasing:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func degradedConfidence(matches int, ceiling float64) float64 {
	c := 0.2 + 0.05*float64(matches)
	if ceiling > 0 && c > ceiling {
		c = ceiling
	}
	return c
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
