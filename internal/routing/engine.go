// Package routing selects the best human agent for an escalated case. A
// strategy is chosen from the case profile, then online candidates are
// filtered and ranked with strategy-weighted scores.
package routing

import (
	"errors"
	"math"
	"sort"

	"github.com/bridgedesk/bridgedesk/internal/config"
	"github.com/bridgedesk/bridgedesk/internal/frustration"
	"github.com/bridgedesk/bridgedesk/internal/registry"
)

// ErrNoAgentAvailable is returned when the filtered candidate set is
// empty. Recoverable: the caller falls back to queue admission.
var ErrNoAgentAvailable = errors.New("no agent available")

// Routing strategies.
const (
	StrategySkillBased        = "skill_based"
	StrategyEmployeeWellbeing = "employee_wellbeing"
	StrategyWorkloadBalanced  = "workload_balanced"
)

// GeneralDomain is the fallback skill domain when no agent carries the
// requirement's primary domain.
const GeneralDomain = "general"

// Requirement is the ephemeral routing profile derived for one
// escalation. Never persisted.
type Requirement struct {
	PrimaryDomain    string `json:"primary_domain"`
	SecondaryDomain  string `json:"secondary_domain,omitempty"`
	Complexity       string `json:"complexity"` // low|medium|high
	Urgency          string `json:"urgency"`    // low|high
	FrustrationLevel string `json:"frustration_level"`
}

// Difficult reports whether the case counts as difficult for wellbeing
// purposes.
func (r Requirement) Difficult() bool {
	return frustration.IsDifficult(r.FrustrationLevel)
}

// Candidate is one scored agent.
type Candidate struct {
	Agent        registry.Agent `json:"agent"`
	Overall      float64        `json:"overall"`
	SkillMatch   float64        `json:"skill_match"`
	Availability float64        `json:"availability"`
	Performance  float64        `json:"performance"`
	Wellbeing    float64        `json:"wellbeing"`
	Strategy     string         `json:"strategy"`
}

// Engine ranks agents for escalated cases.
type Engine struct {
	cfg config.RoutingConfig
	reg *registry.Registry
}

// NewEngine creates a routing engine over the shared registry.
func NewEngine(cfg config.RoutingConfig, reg *registry.Registry) *Engine {
	return &Engine{cfg: cfg, reg: reg}
}

// SelectStrategy picks the routing strategy for a requirement. Pure;
// first matching rule wins. High complexity demands a specialist;
// otherwise a frustrated customer (high or critical) routes for agent
// wellbeing, and calm cases balance load.
func SelectStrategy(req Requirement) string {
	switch {
	case req.Complexity == "high":
		return StrategySkillBased
	case frustration.IsDifficult(req.FrustrationLevel):
		return StrategyEmployeeWellbeing
	default:
		return StrategyWorkloadBalanced
	}
}

// Route selects the best agent for the requirement, or
// ErrNoAgentAvailable when every candidate is filtered out.
func (e *Engine) Route(req Requirement) (*Candidate, error) {
	ranked := e.Rank(req)
	if len(ranked) == 0 {
		return nil, ErrNoAgentAvailable
	}
	return &ranked[0], nil
}

// Rank returns all eligible candidates, best first. Ordering is
// deterministic: overall score, then lower queue size, then lower
// difficult-case count, then agent ID.
func (e *Engine) Rank(req Requirement) []Candidate {
	strategy := SelectStrategy(req)
	candidates := e.filter(req)

	ranked := make([]Candidate, 0, len(candidates))
	for _, a := range candidates {
		ranked = append(ranked, e.score(a, req, strategy))
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if math.Abs(a.Overall-b.Overall) > 1e-9 {
			return a.Overall > b.Overall
		}
		if a.Agent.QueueSize != b.Agent.QueueSize {
			return a.Agent.QueueSize < b.Agent.QueueSize
		}
		if a.Agent.RecentDifficultCases != b.Agent.RecentDifficultCases {
			return a.Agent.RecentDifficultCases < b.Agent.RecentDifficultCases
		}
		return a.Agent.ID < b.Agent.ID
	})
	return ranked
}

// filter applies the hard filters: online, capacity headroom, skill
// overlap with general-domain fallback, and wellbeing cooldown exclusion
// for difficult cases.
func (e *Engine) filter(req Requirement) []registry.Agent {
	online := e.reg.ListAvailable("")

	eligible := func(a registry.Agent) bool {
		if a.QueueSize >= e.cfg.MaxConcurrentPerAgent {
			return false
		}
		if req.Difficult() && e.reg.InCooldown(a) {
			return false
		}
		return true
	}

	// Prefer agents carrying the primary domain; fall back to the general
	// domain, then to any online agent. Routing never fails solely for
	// lack of an exact skill match.
	var primary, general, rest []registry.Agent
	for _, a := range online {
		if !eligible(a) {
			continue
		}
		switch {
		case req.PrimaryDomain != "" && a.HasSkill(req.PrimaryDomain):
			primary = append(primary, a)
		case a.HasSkill(GeneralDomain):
			general = append(general, a)
		default:
			rest = append(rest, a)
		}
	}
	if len(primary) > 0 {
		// Agents outside the primary domain stay in the pool so scoring,
		// not filtering, decides between them.
		return append(primary, append(general, rest...)...)
	}
	if len(general) > 0 {
		return append(general, rest...)
	}
	return rest
}

func (e *Engine) score(a registry.Agent, req Requirement, strategy string) Candidate {
	c := Candidate{
		Agent:        a,
		Strategy:     strategy,
		SkillMatch:   e.skillMatch(a, req),
		Availability: e.availability(a),
		Performance:  e.performance(a),
		Wellbeing:    e.wellbeing(a),
	}
	w := strategyWeights(e.cfg.BaseWeights, strategy)
	c.Overall = w.Skill*c.SkillMatch +
		w.Availability*c.Availability +
		w.Performance*c.Performance +
		w.Wellbeing*c.Wellbeing
	return c
}

// skillMatch scores domain fit: exact primary > secondary > general tag >
// no overlap. Normalized to [0,100].
func (e *Engine) skillMatch(a registry.Agent, req Requirement) float64 {
	switch {
	case req.PrimaryDomain != "" && a.HasSkill(req.PrimaryDomain):
		return 100
	case req.SecondaryDomain != "" && a.HasSkill(req.SecondaryDomain):
		return 70
	case a.HasSkill(GeneralDomain):
		return 40
	default:
		return 20
	}
}

// availability scores inverse utilization with a low-load bonus and a
// steep penalty above the overload threshold.
func (e *Engine) availability(a registry.Agent) float64 {
	max := float64(e.cfg.MaxConcurrentPerAgent)
	util := float64(a.QueueSize) / max

	score := (1 - util) * 100
	if util <= 0.25 {
		score += 10
	}
	if util >= e.cfg.OverloadThreshold {
		score -= 40
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// performance derives from the satisfaction score (0-5 scale).
func (e *Engine) performance(a registry.Agent) float64 {
	score := a.Satisfaction / 5.0 * 100
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// wellbeing penalizes accumulated difficult cases; an agent at the
// consecutive-difficult limit scores zero.
func (e *Engine) wellbeing(a registry.Agent) float64 {
	if a.RecentDifficultCases >= e.cfg.MaxConsecutiveDifficult {
		return 0
	}
	score := 100 - float64(a.RecentDifficultCases)/float64(e.cfg.MaxConsecutiveDifficult)*100
	if score < 0 {
		score = 0
	}
	return score
}

// strategyWeights amplifies the strategy's focus dimension then
// renormalizes so the weights still sum to 1.
func strategyWeights(base config.RoutingWeights, strategy string) config.RoutingWeights {
	w := base
	switch strategy {
	case StrategySkillBased:
		w.Skill *= 2.5
	case StrategyEmployeeWellbeing:
		w.Wellbeing *= 5
	case StrategyWorkloadBalanced:
		w.Availability *= 2.5
	}
	sum := w.Sum()
	w.Skill /= sum
	w.Availability /= sum
	w.Performance /= sum
	w.Wellbeing /= sum
	return w
}
