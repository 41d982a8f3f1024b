package priority

import (
	"math"
	"testing"

	"github.com/bridgedesk/bridgedesk/internal/config"
)

func newCalc() *Calculator {
	return NewCalculator(config.DefaultConfig().Priority)
}

func TestCalculate(t *testing.T) {
	c := newCalc()
	tests := []struct {
		name string
		in   Input
		want float64
	}{
		{"baseline low/low", Input{FrustrationLevel: "low", ComplexityLevel: "low"}, 1.0},
		{"critical high complexity", Input{FrustrationLevel: "critical", ComplexityLevel: "high"}, 8.0},
		{"escalation count", Input{FrustrationLevel: "low", ComplexityLevel: "low", EscalationCount: 2}, 3.0},
		{"repeat issue", Input{FrustrationLevel: "low", ComplexityLevel: "low", RepeatIssue: true}, 2.5},
		{"vip", Input{FrustrationLevel: "low", ComplexityLevel: "low", VIP: true}, 3.0},
		{
			"everything",
			Input{FrustrationLevel: "critical", ComplexityLevel: "high", EscalationCount: 1, RepeatIssue: true, VIP: true},
			8.0 + 1.0 + 1.5 + 2.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Calculate(tt.in)
			if math.Abs(got.Value-tt.want) > 1e-9 {
				t.Fatalf("want %v, got %v (%+v)", tt.want, got.Value, got)
			}
		})
	}
}

func TestCalculateUnknownLevelsFallBack(t *testing.T) {
	c := newCalc()
	got := c.Calculate(Input{FrustrationLevel: "severe", ComplexityLevel: "gnarly"})
	if got.Value != 1.0 {
		t.Fatalf("unknown levels should use the 1.0 fallback, got %v", got.Value)
	}
}

func TestCalculateMonotonic(t *testing.T) {
	c := newCalc()
	base := c.Calculate(Input{FrustrationLevel: "moderate", ComplexityLevel: "medium"})

	bumps := []Input{
		{FrustrationLevel: "high", ComplexityLevel: "medium"},
		{FrustrationLevel: "moderate", ComplexityLevel: "high"},
		{FrustrationLevel: "moderate", ComplexityLevel: "medium", EscalationCount: 1},
		{FrustrationLevel: "moderate", ComplexityLevel: "medium", RepeatIssue: true},
		{FrustrationLevel: "moderate", ComplexityLevel: "medium", VIP: true},
	}
	for _, in := range bumps {
		if got := c.Calculate(in); got.Value <= base.Value {
			t.Errorf("raising %+v did not raise priority: %v <= %v", in, got.Value, base.Value)
		}
	}
}

func TestBreakdownSumsToValue(t *testing.T) {
	c := newCalc()
	s := c.Calculate(Input{FrustrationLevel: "high", ComplexityLevel: "medium", EscalationCount: 3, RepeatIssue: true, VIP: true})
	sum := s.FrustrationMultiplier*s.ComplexityMultiplier + s.EscalationBonus + s.RepeatBonus + s.VIPBonus
	if math.Abs(sum-s.Value) > 1e-9 {
		t.Fatalf("breakdown %v does not reproduce value %v", sum, s.Value)
	}
}
