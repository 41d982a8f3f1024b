package quality

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/bridgedesk/bridgedesk/internal/config"
	"github.com/bridgedesk/bridgedesk/internal/provider"
)

// fakeReviewer returns queued reviews in order, repeating the last one.
type fakeReviewer struct {
	reviews []provider.ReviewResult
	err     error
	calls   int
}

func (f *fakeReviewer) Review(_ context.Context, _, _ string, _ []provider.ContextMessage) (*provider.ReviewResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls
	if i >= len(f.reviews) {
		i = len(f.reviews) - 1
	}
	f.calls++
	r := f.reviews[i]
	return &r, nil
}

type fakeAdjuster struct {
	texts []string
	err   error
	calls int
}

func (f *fakeAdjuster) Adjust(_ context.Context, _, _, _ string) (*provider.GenerationResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls
	if i >= len(f.texts) {
		i = len(f.texts) - 1
	}
	f.calls++
	return &provider.GenerationResult{Text: f.texts[i]}, nil
}

func uniform(score float64) provider.ReviewResult {
	return provider.ReviewResult{
		Accuracy:     score,
		Completeness: score,
		Clarity:      score,
		Satisfaction: score,
		Confidence:   0.8,
		Rationale:    "test review",
	}
}

func defaultQuality() config.QualityConfig {
	return config.DefaultConfig().Quality
}

func TestWeightedScore(t *testing.T) {
	g := NewGate(defaultQuality(), nil, nil)
	rev := &provider.ReviewResult{Accuracy: 8, Completeness: 6, Clarity: 7, Satisfaction: 5}
	// 0.30*8 + 0.25*6 + 0.25*7 + 0.20*5 = 6.65
	if got := g.weighted(rev); math.Abs(got-6.65) > 1e-9 {
		t.Fatalf("want 6.65, got %v", got)
	}
}

func TestDecisionFor(t *testing.T) {
	g := NewGate(defaultQuality(), nil, nil)
	tests := []struct {
		score float64
		want  string
	}{
		{9.0, DecisionAdequate},
		{7.0, DecisionAdequate},
		{6.99, DecisionNeedsAdjustment},
		{5.0, DecisionNeedsAdjustment},
		{4.99, DecisionHumanIntervention},
		{3.0, DecisionHumanIntervention},
		{2.99, DecisionHumanIntervention},
		{0, DecisionHumanIntervention},
	}
	for _, tt := range tests {
		if got := g.DecisionFor(tt.score); got != tt.want {
			t.Errorf("DecisionFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestEvaluateAdequatePassesThrough(t *testing.T) {
	rev := &fakeReviewer{reviews: []provider.ReviewResult{uniform(8)}}
	g := NewGate(defaultQuality(), rev, &fakeAdjuster{texts: []string{"unused"}})

	res := g.Evaluate(context.Background(), "q", "r", nil, 0)
	if res.Decision != DecisionAdequate {
		t.Fatalf("want adequate, got %s", res.Decision)
	}
	if res.AdjustedResponse != "" {
		t.Fatal("adequate response must not be adjusted")
	}
}

func TestEvaluateAdjustmentSucceeds(t *testing.T) {
	// First review 6.5 (needs adjustment), rewrite reviews at 8.2.
	rev := &fakeReviewer{reviews: []provider.ReviewResult{uniform(6.5), uniform(8.2)}}
	adj := &fakeAdjuster{texts: []string{"improved reply"}}
	g := NewGate(defaultQuality(), rev, adj)

	res := g.Evaluate(context.Background(), "q", "r", nil, 0)
	if res.Decision != DecisionAdequate {
		t.Fatalf("want adequate after adjustment, got %s", res.Decision)
	}
	if res.AdjustedResponse != "improved reply" {
		t.Fatalf("want adjusted text delivered, got %q", res.AdjustedResponse)
	}
	if math.Abs(res.Score-8.2) > 1e-9 {
		t.Fatalf("want rewrite score, got %v", res.Score)
	}
}

func TestEvaluateAdjustmentStagnates(t *testing.T) {
	// 6.0 then 6.2: improvement 0.2 below the 0.5 threshold.
	rev := &fakeReviewer{reviews: []provider.ReviewResult{uniform(6.0), uniform(6.2)}}
	g := NewGate(defaultQuality(), rev, &fakeAdjuster{texts: []string{"barely better"}})

	res := g.Evaluate(context.Background(), "q", "r", nil, 0)
	if res.Decision != DecisionHumanIntervention {
		t.Fatalf("want human_intervention on stagnation, got %s", res.Decision)
	}
}

func TestEvaluateAdjustmentAttemptsExhausted(t *testing.T) {
	// Each rewrite improves by 0.6 but never reaches 7.0.
	rev := &fakeReviewer{reviews: []provider.ReviewResult{
		uniform(5.0), uniform(5.6), uniform(6.2),
	}}
	adj := &fakeAdjuster{texts: []string{"take one", "take two"}}
	g := NewGate(defaultQuality(), rev, adj)

	res := g.Evaluate(context.Background(), "q", "r", nil, 0)
	if res.Decision != DecisionHumanIntervention {
		t.Fatalf("want human_intervention after attempts, got %s", res.Decision)
	}
	if adj.calls != 2 {
		t.Fatalf("want exactly 2 adjustment attempts, got %d", adj.calls)
	}
}

func TestEvaluateAdjusterFailure(t *testing.T) {
	rev := &fakeReviewer{reviews: []provider.ReviewResult{uniform(6.0)}}
	g := NewGate(defaultQuality(), rev, &fakeAdjuster{err: errors.New("adjuster down")})

	res := g.Evaluate(context.Background(), "q", "r", nil, 0)
	if res.Decision != DecisionHumanIntervention {
		t.Fatalf("want human_intervention when adjuster fails, got %s", res.Decision)
	}
}

func TestEvaluateHallucinationStreak(t *testing.T) {
	flagged := uniform(8)
	flagged.Unsupported = true

	g := NewGate(defaultQuality(), &fakeReviewer{reviews: []provider.ReviewResult{flagged}}, nil)

	// Two prior flagged turns plus this one hits the streak of 3.
	res := g.Evaluate(context.Background(), "q", "r", nil, 2)
	if res.Decision != DecisionHumanIntervention {
		t.Fatalf("want forced human_intervention at streak, got %s", res.Decision)
	}
	if !res.Unsupported {
		t.Fatal("result must carry the unsupported flag")
	}

	// Below the streak an otherwise adequate response passes.
	g2 := NewGate(defaultQuality(), &fakeReviewer{reviews: []provider.ReviewResult{flagged}}, nil)
	res = g2.Evaluate(context.Background(), "q", "r", nil, 1)
	if res.Decision != DecisionAdequate {
		t.Fatalf("want adequate below streak, got %s", res.Decision)
	}
}

func TestEvaluateReviewerDegraded(t *testing.T) {
	g := NewGate(defaultQuality(), &fakeReviewer{err: errors.New("reviewer down")}, nil)

	res := g.Evaluate(context.Background(), "q", "r", nil, 0)
	if !res.Degraded {
		t.Fatal("want degraded result")
	}
	if res.Decision != DecisionAdequate {
		t.Fatalf("degraded review passes ungated, got %s", res.Decision)
	}
	if res.Confidence != 0.2 {
		t.Fatalf("want floored confidence, got %v", res.Confidence)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		rev := &fakeReviewer{reviews: []provider.ReviewResult{uniform(8)}}
		g := NewGate(defaultQuality(), rev, nil)
		res := g.Evaluate(context.Background(), "q", "r", nil, 0)
		if res.Decision != DecisionAdequate || res.Score != 8 {
			t.Fatalf("run %d diverged: %+v", i, res)
		}
	}
}
