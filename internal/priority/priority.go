// Package priority computes the scalar used to order escalations. Pure
// and deterministic; no external calls.
package priority

import "github.com/bridgedesk/bridgedesk/internal/config"

// Input describes one escalation event.
type Input struct {
	FrustrationLevel string
	ComplexityLevel  string
	EscalationCount  int // prior escalations in this conversation
	RepeatIssue      bool
	VIP              bool
}

// Score is the computed priority plus its breakdown. Ephemeral; computed
// fresh per escalation event.
type Score struct {
	Value                 float64 `json:"value"`
	FrustrationMultiplier float64 `json:"frustration_multiplier"`
	ComplexityMultiplier  float64 `json:"complexity_multiplier"`
	EscalationBonus       float64 `json:"escalation_bonus"`
	RepeatBonus           float64 `json:"repeat_bonus"`
	VIPBonus              float64 `json:"vip_bonus"`
}

// Calculator computes priority scores from configured multipliers.
type Calculator struct {
	cfg config.PriorityConfig
}

// NewCalculator creates a priority calculator.
func NewCalculator(cfg config.PriorityConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// Calculate computes the priority score:
//
//	frustrationMultiplier × complexityMultiplier
//	  + escalationCount × escalationBonus
//	  + repeatBonus (if repeat issue)
//	  + vipBonus (if VIP)
//
// Unknown levels fall back to the lowest multiplier so the result stays
// monotonic in every input.
func (c *Calculator) Calculate(in Input) Score {
	fm := c.multiplier(c.cfg.FrustrationMultipliers, in.FrustrationLevel, 1.0)
	cm := c.multiplier(c.cfg.ComplexityMultipliers, in.ComplexityLevel, 1.0)

	s := Score{
		FrustrationMultiplier: fm,
		ComplexityMultiplier:  cm,
		EscalationBonus:       float64(in.EscalationCount) * c.cfg.EscalationBonus,
	}
	if in.RepeatIssue {
		s.RepeatBonus = c.cfg.RepeatBonus
	}
	if in.VIP {
		s.VIPBonus = c.cfg.VIPBonus
	}
	s.Value = fm*cm + s.EscalationBonus + s.RepeatBonus + s.VIPBonus
	return s
}

func (c *Calculator) multiplier(table map[string]float64, level string, fallback float64) float64 {
	if v, ok := table[level]; ok {
		return v
	}
	return fallback
}
