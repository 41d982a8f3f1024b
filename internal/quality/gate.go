// Package quality gates candidate automated responses: it scores them
// against a weighted rubric and decides whether to pass, adjust, or force
// human intervention.
package quality

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bridgedesk/bridgedesk/internal/config"
	"github.com/bridgedesk/bridgedesk/internal/provider"
)

// Gate decisions.
const (
	DecisionAdequate          = "adequate"
	DecisionNeedsAdjustment   = "needs_adjustment"
	DecisionHumanIntervention = "human_intervention"
)

// Result is the outcome of gating one candidate response.
type Result struct {
	Score      float64 `json:"score"` // [0,10], rubric-weighted
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	// AdjustedResponse is set when an adjustment attempt produced the
	// response that should be delivered instead of the original.
	AdjustedResponse string `json:"adjusted_response,omitempty"`
	// Unsupported reports whether this turn's response was flagged as
	// fabricated/unsupported. The caller tracks the per-conversation
	// streak and passes it back in on the next turn.
	Unsupported bool `json:"unsupported"`
	// Degraded is set when the reviewer was unavailable and the response
	// passed ungated.
	Degraded bool `json:"degraded"`
}

// Gate evaluates candidate responses. It is stateless; the
// hallucination-streak counter lives with the conversation.
type Gate struct {
	cfg      config.QualityConfig
	reviewer provider.Reviewer
	adjuster provider.Adjuster
}

// NewGate creates a quality gate. adjuster may be nil, disabling the
// adjustment loop.
func NewGate(cfg config.QualityConfig, reviewer provider.Reviewer, adjuster provider.Adjuster) *Gate {
	return &Gate{cfg: cfg, reviewer: reviewer, adjuster: adjuster}
}

// Evaluate gates a candidate response. priorStreak is the number of
// immediately preceding turns in this conversation whose responses were
// flagged unsupported.
func (g *Gate) Evaluate(ctx context.Context, query, response string, history []provider.ContextMessage, priorStreak int) *Result {
	rev, err := g.reviewer.Review(ctx, query, response, history)
	if err != nil {
		slog.Warn("response review degraded", "error", err)
		// Without a reviewer verdict the customer still gets a reply; the
		// turn continues ungated with confidence floored.
		return &Result{
			Score:      g.cfg.AdequateScore,
			Decision:   DecisionAdequate,
			Confidence: 0.2,
			Reasoning:  "review unavailable, response passed ungated",
			Degraded:   true,
		}
	}

	score := g.weighted(rev)
	res := &Result{
		Score:       score,
		Decision:    g.DecisionFor(score),
		Confidence:  rev.Confidence,
		Reasoning:   rev.Rationale,
		Unsupported: rev.Unsupported,
	}

	// The streak rule fires independently of the score.
	if rev.Unsupported && priorStreak+1 >= g.cfg.HallucinationStreak {
		res.Decision = DecisionHumanIntervention
		res.Reasoning = fmt.Sprintf("unsupported claims on %d consecutive turns: %s",
			priorStreak+1, rev.Rationale)
		return res
	}

	if res.Decision == DecisionNeedsAdjustment && g.adjuster != nil {
		g.adjust(ctx, query, response, history, rev, res)
	}
	return res
}

// adjust runs the bounded adjustment loop, mutating res with the outcome.
func (g *Gate) adjust(ctx context.Context, query, response string, history []provider.ContextMessage, rev *provider.ReviewResult, res *Result) {
	baseline := res.Score
	critique := rev.Rationale
	current := response

	for attempt := 1; attempt <= g.cfg.MaxAdjustAttempts; attempt++ {
		adjusted, err := g.adjuster.Adjust(ctx, query, current, critique)
		if err != nil {
			slog.Warn("response adjustment failed", "attempt", attempt, "error", err)
			res.Decision = DecisionHumanIntervention
			res.Reasoning = "adjustment unavailable: " + res.Reasoning
			return
		}

		rev2, err := g.reviewer.Review(ctx, query, adjusted.Text, history)
		if err != nil {
			// Can't verify the rewrite; deliver the original rather than an
			// unreviewed one.
			res.Decision = DecisionNeedsAdjustment
			return
		}
		score2 := g.weighted(rev2)

		if score2 >= g.cfg.AdequateScore {
			res.Score = score2
			res.Decision = DecisionAdequate
			res.Confidence = rev2.Confidence
			res.Reasoning = rev2.Rationale
			res.AdjustedResponse = adjusted.Text
			res.Unsupported = rev2.Unsupported
			return
		}
		if score2-baseline < g.cfg.ImprovementThreshold {
			res.Decision = DecisionHumanIntervention
			res.Reasoning = fmt.Sprintf("adjustment did not improve (%.1f → %.1f): %s",
				baseline, score2, rev2.Rationale)
			return
		}

		baseline = score2
		critique = rev2.Rationale
		current = adjusted.Text
		res.Score = score2
		res.AdjustedResponse = adjusted.Text
		res.Unsupported = rev2.Unsupported
	}

	// Improved but never reached adequate within the attempt limit.
	res.Decision = DecisionHumanIntervention
	res.Reasoning = "adjustment attempts exhausted: " + res.Reasoning
}

// DecisionFor maps a rubric-weighted score to a gate decision. Pure;
// identical inputs always give identical outputs.
func (g *Gate) DecisionFor(score float64) string {
	switch {
	case score < g.cfg.AutoEscalateBelow:
		return DecisionHumanIntervention
	case score >= g.cfg.AdequateScore:
		return DecisionAdequate
	case score >= g.cfg.AdjustmentScore:
		return DecisionNeedsAdjustment
	default:
		return DecisionHumanIntervention
	}
}

func (g *Gate) weighted(rev *provider.ReviewResult) float64 {
	w := g.cfg.Rubric
	return w.Accuracy*rev.Accuracy +
		w.Completeness*rev.Completeness +
		w.Clarity*rev.Clarity +
		w.Satisfaction*rev.Satisfaction
}
